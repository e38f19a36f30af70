package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType: вид действия в журнале.
type ActionType string

const (
	ActionTypeAuthorize ActionType = "AuthorizeAction"
	ActionTypePay       ActionType = "PayAction"
	ActionTypeRefund    ActionType = "RefundAction"
	ActionTypeUse       ActionType = "UseAction"
	ActionTypeReturn    ActionType = "ReturnAction"
	ActionTypeSend      ActionType = "SendAction"
	ActionTypeGive      ActionType = "GiveAction"
	ActionTypeOrder     ActionType = "OrderAction"
)

// ActionStatus описывает жизненный цикл действия.
// Active: единственное изменяемое состояние; переходы необратимы.
type ActionStatus string

const (
	ActionStatusActive    ActionStatus = "ActiveActionStatus"
	ActionStatusCompleted ActionStatus = "CompletedActionStatus"
	ActionStatusCanceled  ActionStatus = "CanceledActionStatus"
	ActionStatusFailed    ActionStatus = "FailedActionStatus"
)

// Participant: сторона действия или транзакции (покупатель, кинотеатр).
type Participant struct {
	TypeOf   string          `json:"typeOf"`
	ID       string          `json:"id"`
	Name     string          `json:"name,omitempty"`
	URL      string          `json:"url,omitempty"`
	MemberOf *MembershipCard `json:"memberOf,omitempty"`
}

// MembershipCard: членство покупателя в программе лояльности.
type MembershipCard struct {
	MembershipNumber string `json:"membershipNumber"`
	ProgramName      string `json:"programName,omitempty"`
}

const (
	ParticipantPerson       = "Person"
	ParticipantMovieTheater = "MovieTheater"
)

// Ref: невладеющая ссылка на транзакцию или заказ (typeOf + id).
// Для заказов ID содержит номер заказа.
type Ref struct {
	TypeOf string `json:"typeOf"`
	ID     string `json:"id"`
}

// RefTypeOrder: typeOf ссылки на заказ.
const RefTypeOrder = "Order"

// TransactionRef строит ссылку на транзакцию.
func TransactionRef(t TransactionType, id string) *Ref {
	return &Ref{TypeOf: string(t), ID: id}
}

// OrderRef строит ссылку на заказ по номеру.
func OrderRef(orderNumber string) *Ref {
	return &Ref{TypeOf: RefTypeOrder, ID: orderNumber}
}

// ActionPotentialActions: шаблоны последующих действий, вложенные в шаблон действия.
type ActionPotentialActions struct {
	SendEmailMessage    *ActionAttributes  `json:"sendEmailMessage,omitempty"`
	PayCreditCard       *ActionAttributes  `json:"payCreditCard,omitempty"`
	PayPecorino         []ActionAttributes `json:"payPecorino,omitempty"`
	UseMvtk             *ActionAttributes  `json:"useMvtk,omitempty"`
	GivePecorinoAward   []ActionAttributes `json:"givePecorinoAward,omitempty"`
	SendOrder           *ActionAttributes  `json:"sendOrder,omitempty"`
	RefundCreditCard    *ActionAttributes  `json:"refundCreditCard,omitempty"`
	RefundPecorino      []ActionAttributes `json:"refundPecorino,omitempty"`
	ReturnPecorinoAward []ActionAttributes `json:"returnPecorinoAward,omitempty"`
}

// ActionAttributes: самодостаточный шаблон действия.
// Из него журнал стартует действие, и его же хранят potentialActions транзакций.
type ActionAttributes struct {
	TypeOf           ActionType
	Object           ActionObject
	Agent            Participant
	Recipient        Participant
	Purpose          *Ref
	PotentialActions *ActionPotentialActions
}

// OrderNumber возвращает номер заказа, к которому относится действие, если он известен.
func (a ActionAttributes) OrderNumber() string {
	if a.Purpose != nil && a.Purpose.TypeOf == RefTypeOrder {
		return a.Purpose.ID
	}
	if o, ok := a.Object.(interface{ orderNumber() string }); ok {
		return o.orderNumber()
	}
	return ""
}

// TransactionID возвращает id транзакции из purpose, если purpose указывает на транзакцию.
func (a ActionAttributes) TransactionID() string {
	if a.Purpose == nil || a.Purpose.TypeOf == RefTypeOrder {
		return ""
	}
	return a.Purpose.ID
}

// Action: запись журнала действий.
type Action struct {
	ActionAttributes
	ID           string
	ActionStatus ActionStatus
	Result       ActionResult
	Error        *ActionError
	StartDate    time.Time
	EndDate      *time.Time
}

// Validate проверяет инвариант: result и error взаимоисключающие
// и оба отсутствуют, пока действие активно.
func (a Action) Validate() error {
	switch a.ActionStatus {
	case ActionStatusActive:
		if a.Result != nil || a.Error != nil {
			return fmt.Errorf("active action %s must have neither result nor error", a.ID)
		}
	case ActionStatusCompleted, ActionStatusCanceled:
		if a.Error != nil {
			return fmt.Errorf("%s action %s must not carry an error", a.ActionStatus, a.ID)
		}
	case ActionStatusFailed:
		if a.Result != nil {
			return fmt.Errorf("failed action %s must not carry a result", a.ID)
		}
		if a.Error == nil {
			return fmt.Errorf("failed action %s has no error snapshot", a.ID)
		}
	default:
		return fmt.Errorf("unknown action status %q", a.ActionStatus)
	}
	return nil
}

// ObjectAs извлекает объект конкретного варианта.
func ObjectAs[T ActionObject](a ActionAttributes) (T, bool) {
	v, ok := a.Object.(T)
	return v, ok
}

// ResultAs извлекает результат конкретного варианта.
func ResultAs[T ActionResult](a Action) (T, bool) {
	v, ok := a.Result.(T)
	return v, ok
}

type actionWire struct {
	ID               string                  `json:"id,omitempty"`
	TypeOf           ActionType              `json:"typeOf"`
	ActionStatus     ActionStatus            `json:"actionStatus,omitempty"`
	Agent            Participant             `json:"agent"`
	Recipient        Participant             `json:"recipient"`
	Purpose          *Ref                    `json:"purpose,omitempty"`
	ObjectType       ObjectType              `json:"objectType"`
	Object           json.RawMessage         `json:"object"`
	Result           json.RawMessage         `json:"result,omitempty"`
	Error            *ActionError            `json:"error,omitempty"`
	PotentialActions *ActionPotentialActions `json:"potentialActions,omitempty"`
	StartDate        *time.Time              `json:"startDate,omitempty"`
	EndDate          *time.Time              `json:"endDate,omitempty"`
}

func (a ActionAttributes) toWire() (actionWire, error) {
	if a.Object == nil {
		return actionWire{}, fmt.Errorf("action %s: object is required", a.TypeOf)
	}
	obj, err := json.Marshal(a.Object)
	if err != nil {
		return actionWire{}, fmt.Errorf("marshal action object: %w", err)
	}
	return actionWire{
		TypeOf:           a.TypeOf,
		Agent:            a.Agent,
		Recipient:        a.Recipient,
		Purpose:          a.Purpose,
		ObjectType:       a.Object.ObjectType(),
		Object:           obj,
		PotentialActions: a.PotentialActions,
	}, nil
}

func (w actionWire) attributes() (ActionAttributes, error) {
	obj, err := DecodeActionObject(w.ObjectType, w.Object)
	if err != nil {
		return ActionAttributes{}, err
	}
	return ActionAttributes{
		TypeOf:           w.TypeOf,
		Object:           obj,
		Agent:            w.Agent,
		Recipient:        w.Recipient,
		Purpose:          w.Purpose,
		PotentialActions: w.PotentialActions,
	}, nil
}

// MarshalJSON кодирует шаблон с явным тегом objectType.
func (a ActionAttributes) MarshalJSON() ([]byte, error) {
	w, err := a.toWire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalJSON восстанавливает вариант объекта по тегу objectType.
func (a *ActionAttributes) UnmarshalJSON(data []byte) error {
	var w actionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	attrs, err := w.attributes()
	if err != nil {
		return err
	}
	*a = attrs
	return nil
}

// MarshalJSON кодирует действие вместе со статусом, результатом и ошибкой.
func (a Action) MarshalJSON() ([]byte, error) {
	w, err := a.ActionAttributes.toWire()
	if err != nil {
		return nil, err
	}
	w.ID = a.ID
	w.ActionStatus = a.ActionStatus
	w.Error = a.Error
	w.EndDate = a.EndDate
	if !a.StartDate.IsZero() {
		start := a.StartDate
		w.StartDate = &start
	}
	if a.Result != nil {
		res, err := json.Marshal(a.Result)
		if err != nil {
			return nil, fmt.Errorf("marshal action result: %w", err)
		}
		w.Result = res
	}
	return json.Marshal(w)
}

// UnmarshalJSON восстанавливает действие; тип результата выводится из objectType.
func (a *Action) UnmarshalJSON(data []byte) error {
	var w actionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	attrs, err := w.attributes()
	if err != nil {
		return err
	}
	out := Action{
		ActionAttributes: attrs,
		ID:               w.ID,
		ActionStatus:     w.ActionStatus,
		Error:            w.Error,
		EndDate:          w.EndDate,
	}
	if w.StartDate != nil {
		out.StartDate = *w.StartDate
	}
	if len(w.Result) > 0 && string(w.Result) != "null" {
		res, err := DecodeActionResult(w.ObjectType, w.Result)
		if err != nil {
			return err
		}
		out.Result = res
	}
	*a = out
	return nil
}
