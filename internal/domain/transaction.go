package domain

import "time"

// TransactionType: вид транзакции.
type TransactionType string

const (
	TransactionTypePlaceOrder  TransactionType = "PlaceOrder"
	TransactionTypeReturnOrder TransactionType = "ReturnOrder"
)

// TransactionStatus: состояние транзакции. Изменяемо только InProgress.
type TransactionStatus string

const (
	TransactionStatusInProgress TransactionStatus = "InProgress"
	TransactionStatusConfirmed  TransactionStatus = "Confirmed"
	TransactionStatusExpired    TransactionStatus = "Expired"
	TransactionStatusCanceled   TransactionStatus = "Canceled"
)

// IsTerminal сообщает, что статус больше не меняется.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusConfirmed || s == TransactionStatusExpired || s == TransactionStatusCanceled
}

// TasksExportationStatus защищает от повторного экспорта задач по транзакции.
type TasksExportationStatus string

const (
	TasksUnexported TasksExportationStatus = "Unexported"
	TasksExporting  TasksExportationStatus = "Exporting"
	TasksExported   TasksExportationStatus = "Exported"
)

// ClientUser: API-клиент, от имени которого идёт транзакция.
type ClientUser struct {
	ClientID string `json:"clientId"`
	Username string `json:"username,omitempty"`
}

// CustomerContact: контактные данные покупателя.
type CustomerContact struct {
	FamilyName string `json:"familyName"`
	GivenName  string `json:"givenName"`
	Email      string `json:"email"`
	Telephone  string `json:"telephone"`
}

// ReturnReason: причина возврата заказа.
type ReturnReason string

const (
	ReturnReasonCustomer ReturnReason = "Customer"
	ReturnReasonSeller   ReturnReason = "Seller"
)

// TransactionObject содержит данные, накопленные транзакцией.
// Поля сгруппированы по виду транзакции.
type TransactionObject struct {
	ClientUser ClientUser `json:"clientUser"`

	// PlaceOrder
	CustomerContact  *CustomerContact `json:"customerContact,omitempty"`
	AuthorizeActions []Action         `json:"authorizeActions,omitempty"`

	// ReturnOrder
	Order           *Order       `json:"order,omitempty"`
	Transaction     *Ref         `json:"transaction,omitempty"`
	CancellationFee int          `json:"cancellationFee,omitempty"`
	Reason          ReturnReason `json:"reason,omitempty"`
}

// TransactionResult фиксируется один раз при подтверждении.
type TransactionResult struct {
	Order *Order `json:"order,omitempty"`
}

// OrderActionTemplate: корень дерева шаблонов заказа.
type OrderActionTemplate struct {
	TypeOf           ActionType              `json:"typeOf"`
	Object           Ref                     `json:"object"`
	PotentialActions *ActionPotentialActions `json:"potentialActions,omitempty"`
}

// TransactionPotentialActions: дерево шаблонов, передаваемое исполнителям.
type TransactionPotentialActions struct {
	Order       *OrderActionTemplate `json:"order,omitempty"`
	ReturnOrder *ActionAttributes    `json:"returnOrder,omitempty"`
}

// Transaction: агрегат транзакции заказа или возврата.
type Transaction struct {
	ID                     string                       `json:"id"`
	TypeOf                 TransactionType              `json:"typeOf"`
	Status                 TransactionStatus            `json:"status"`
	Agent                  Participant                  `json:"agent"`
	Seller                 Participant                  `json:"seller"`
	Object                 TransactionObject            `json:"object"`
	Result                 *TransactionResult           `json:"result,omitempty"`
	PotentialActions       *TransactionPotentialActions `json:"potentialActions,omitempty"`
	Expires                time.Time                    `json:"expires"`
	StartDate              time.Time                    `json:"startDate"`
	EndDate                *time.Time                   `json:"endDate,omitempty"`
	TasksExportationStatus TasksExportationStatus       `json:"tasksExportationStatus"`
	TasksExportedAt        *time.Time                   `json:"tasksExportedAt,omitempty"`
}

// Ref возвращает невладеющую ссылку на транзакцию.
func (t Transaction) Ref() *Ref {
	return TransactionRef(t.TypeOf, t.ID)
}

// CompletedAuthorizeActions фильтрует завершённые авторизации по виду объекта.
// Пустой objectType означает все виды.
func CompletedAuthorizeActions(actions []Action, objectType ObjectType) []Action {
	out := make([]Action, 0, len(actions))
	for _, a := range actions {
		if a.TypeOf != ActionTypeAuthorize || a.ActionStatus != ActionStatusCompleted {
			continue
		}
		if objectType != "" && a.Object.ObjectType() != objectType {
			continue
		}
		out = append(out, a)
	}
	return out
}

// ConfirmParams: атомарная запись подтверждения транзакции.
type ConfirmParams struct {
	TypeOf           TransactionType
	ID               string
	AuthorizeActions []Action
	Result           TransactionResult
	PotentialActions TransactionPotentialActions
}
