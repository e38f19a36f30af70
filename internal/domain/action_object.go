package domain

import (
	"encoding/json"
	"fmt"
)

// ObjectType: тег варианта объекта действия.
type ObjectType string

const (
	// Объекты авторизаций.
	ObjectTypeSeatReservation ObjectType = "SeatReservation"
	ObjectTypeCreditCard      ObjectType = "CreditCard"
	ObjectTypePecorinoPayment ObjectType = "PecorinoPayment"
	ObjectTypePecorinoAward   ObjectType = "PecorinoAward"
	ObjectTypeMvtk            ObjectType = "Mvtk"

	// Объекты исполнения.
	ObjectTypeCreditCardSettlement ObjectType = "CreditCardSettlement"
	ObjectTypePecorinoSettlement   ObjectType = "PecorinoSettlement"
	ObjectTypeMvtkUse              ObjectType = "MvtkUse"
	ObjectTypePecorinoAwardGrant   ObjectType = "PecorinoAwardGrant"
	ObjectTypeCreditCardRefund     ObjectType = "CreditCardRefund"
	ObjectTypePecorinoRefund       ObjectType = "PecorinoRefund"
	ObjectTypeOrder                ObjectType = "Order"
	ObjectTypePecorinoAwardReturn  ObjectType = "PecorinoAwardReturn"
	ObjectTypeEmailMessage         ObjectType = "EmailMessage"
)

// ActionObject: закрытое множество вариантов объекта действия.
type ActionObject interface {
	ObjectType() ObjectType
	actionObject()
}

// ActionResult: закрытое множество вариантов результата действия.
type ActionResult interface {
	actionResult()
}

// PaymentMethodType: способ оплаты заказа.
type PaymentMethodType string

const (
	PaymentMethodCreditCard PaymentMethodType = "CreditCard"
	PaymentMethodPecorino   PaymentMethodType = "Pecorino"
)

// --- авторизация мест ---

// ScreeningEvent: сеанс, на который бронируются места.
type ScreeningEvent struct {
	Identifier  string `json:"identifier"`
	TheaterCode string `json:"theaterCode"`
	ScreenCode  string `json:"screenCode,omitempty"`
	Name        string `json:"name,omitempty"`
	StartDate   string `json:"startDate,omitempty"`
}

// SeatOffer: место и выбранный вид билета.
type SeatOffer struct {
	SeatSection string `json:"seatSection"`
	SeatNumber  string `json:"seatNumber"`
	TicketCode  string `json:"ticketCode"`
	TicketName  string `json:"ticketName,omitempty"`
	Price       int    `json:"price"`
	// MvtkNum: номер ваучера, если билет оплачен ваучером.
	MvtkNum string `json:"mvtkNum,omitempty"`
}

// SeatKey идентифицирует место в зале.
func (o SeatOffer) SeatKey() string {
	return o.SeatSection + ":" + o.SeatNumber
}

type SeatReservationObject struct {
	Event  ScreeningEvent `json:"event"`
	Offers []SeatOffer    `json:"acceptedOffer"`
}

type SeatReservationResult struct {
	Price       int             `json:"price"`
	HoldRequest SeatHoldRequest `json:"holdRequest"`
	Hold        SeatHold        `json:"hold"`
}

// --- авторизация кредитной карты ---

// CreditCardInput: данные карты (токен или сохранённая карта участника).
type CreditCardInput struct {
	Token    string `json:"token,omitempty"`
	MemberID string `json:"memberId,omitempty"`
	CardSeq  string `json:"cardSeq,omitempty"`
}

type CreditCardObject struct {
	OrderID    string          `json:"orderId"`
	Amount     int             `json:"amount"`
	Method     string          `json:"method"`
	CreditCard CreditCardInput `json:"creditCard"`
}

type CreditCardAuthResult struct {
	Price          int             `json:"price"`
	Amount         int             `json:"amount"`
	EntryTranArgs  EntryTranArgs   `json:"entryTranArgs"`
	EntryTran      EntryTranResult `json:"entryTranResult"`
	ExecTranArgs   ExecTranArgs    `json:"execTranArgs"`
	ExecTranResult ExecTranResult  `json:"execTranResult"`
}

// --- авторизация оплаты баллами Pecorino ---

type PecorinoPaymentObject struct {
	TransactionID     string `json:"transactionId"`
	Amount            int    `json:"amount"`
	FromAccountNumber string `json:"fromAccountNumber"`
	Notes             string `json:"notes,omitempty"`
}

type PecorinoPaymentResult struct {
	Price               int                 `json:"price"`
	Amount              int                 `json:"amount"`
	PecorinoTransaction PecorinoTransaction `json:"pecorinoTransaction"`
	PecorinoEndpoint    string              `json:"pecorinoEndpoint"`
}

// --- авторизация начисления бонуса Pecorino ---

type PecorinoAwardObject struct {
	TransactionID   string `json:"transactionId"`
	Amount          int    `json:"amount"`
	ToAccountNumber string `json:"toAccountNumber"`
}

type PecorinoAwardResult struct {
	Price               int                 `json:"price"`
	Amount              int                 `json:"amount"`
	PecorinoTransaction PecorinoTransaction `json:"pecorinoTransaction"`
	PecorinoEndpoint    string              `json:"pecorinoEndpoint"`
}

// --- авторизация ваучеров mvtk ---

// MvtkTicket: ваучер, привязанный к месту.
type MvtkTicket struct {
	KnyknrNo    string `json:"knyknrNo"`
	PinCd       string `json:"pinCd,omitempty"`
	TicketCode  string `json:"ticketCode"`
	Price       int    `json:"price"`
	SeatSection string `json:"seatSection"`
	SeatNumber  string `json:"seatNumber"`
}

type MvtkObject struct {
	TransactionID string       `json:"transactionId"`
	Tickets       []MvtkTicket `json:"tickets"`
}

type MvtkResult struct {
	Price  int `json:"price"`
	Number int `json:"number"`
}

// --- исполнение ---

// PaymentMethod описывает способ оплаты в шаблоне PayAction.
type PaymentMethod struct {
	TypeOf          PaymentMethodType `json:"typeOf"`
	Name            string            `json:"name"`
	PaymentMethodID string            `json:"paymentMethodId"`
	TotalPaymentDue int               `json:"totalPaymentDue"`
}

// CreditCardSettlement: объект PayAction кредитной картой.
// Authorization: снимок результата авторизации, из которого берётся сумма.
type CreditCardSettlement struct {
	PaymentMethod     PaymentMethod        `json:"paymentMethod"`
	AuthorizeActionID string               `json:"authorizeActionId"`
	Authorization     CreditCardAuthResult `json:"authorization"`
}

type CreditCardSettlementResult struct {
	CreditCardSales AlterTranResult `json:"creditCardSales"`
}

// PecorinoSettlement: объект PayAction баллами.
type PecorinoSettlement struct {
	PaymentMethod       PaymentMethod       `json:"paymentMethod"`
	AuthorizeActionID   string              `json:"authorizeActionId"`
	PecorinoTransaction PecorinoTransaction `json:"pecorinoTransaction"`
	PecorinoEndpoint    string              `json:"pecorinoEndpoint"`
}

type MvtkUse struct {
	AuthorizeActionID string       `json:"authorizeActionId"`
	Tickets           []MvtkTicket `json:"tickets"`
}

// PecorinoAwardGrant: объект GiveAction: подтверждение депозита бонуса.
type PecorinoAwardGrant struct {
	AuthorizeActionID   string              `json:"authorizeActionId"`
	Amount              int                 `json:"amount"`
	ToAccountNumber     string              `json:"toAccountNumber"`
	PecorinoTransaction PecorinoTransaction `json:"pecorinoTransaction"`
	PecorinoEndpoint    string              `json:"pecorinoEndpoint"`
}

// CreditCardRefund: объект RefundAction по оплате картой.
type CreditCardRefund struct {
	PayAction       Action `json:"payAction"`
	CancellationFee int    `json:"cancellationFee"`
}

func (o CreditCardRefund) orderNumber() string { return o.PayAction.OrderNumber() }

type CreditCardRefundResult struct {
	AlterTranResult AlterTranResult `json:"alterTranResult"`
}

// PecorinoRefund: объект RefundAction по оплате баллами.
type PecorinoRefund struct {
	PayAction Action `json:"payAction"`
}

func (o PecorinoRefund) orderNumber() string { return o.PayAction.OrderNumber() }

type PecorinoRefundResult struct {
	PecorinoTransaction PecorinoTransaction `json:"pecorinoTransaction"`
}

// OrderObject: объект ReturnAction/SendAction/OrderAction: сам заказ.
type OrderObject struct {
	Order Order `json:"order"`
}

func (o OrderObject) orderNumber() string { return o.Order.OrderNumber }

// PecorinoAwardReturn: объект ReturnAction: отзыв начисленного бонуса.
type PecorinoAwardReturn struct {
	AuthorizeAction Action `json:"authorizeAction"`
}

// EmailMessage: письмо, отправляемое задачей SendEmailMessage.
type EmailMessage struct {
	Identifier  string       `json:"identifier"`
	Name        string       `json:"name"`
	Sender      EmailAddress `json:"sender"`
	ToRecipient EmailAddress `json:"toRecipient"`
	About       string       `json:"about"`
	Text        string       `json:"text"`
}

type EmailAddress struct {
	TypeOf string `json:"typeOf"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// EmptyResult: результат действий без внешних идентификаторов.
type EmptyResult struct{}

func (SeatReservationObject) ObjectType() ObjectType { return ObjectTypeSeatReservation }
func (CreditCardObject) ObjectType() ObjectType      { return ObjectTypeCreditCard }
func (PecorinoPaymentObject) ObjectType() ObjectType { return ObjectTypePecorinoPayment }
func (PecorinoAwardObject) ObjectType() ObjectType   { return ObjectTypePecorinoAward }
func (MvtkObject) ObjectType() ObjectType            { return ObjectTypeMvtk }
func (CreditCardSettlement) ObjectType() ObjectType  { return ObjectTypeCreditCardSettlement }
func (PecorinoSettlement) ObjectType() ObjectType    { return ObjectTypePecorinoSettlement }
func (MvtkUse) ObjectType() ObjectType               { return ObjectTypeMvtkUse }
func (PecorinoAwardGrant) ObjectType() ObjectType    { return ObjectTypePecorinoAwardGrant }
func (CreditCardRefund) ObjectType() ObjectType      { return ObjectTypeCreditCardRefund }
func (PecorinoRefund) ObjectType() ObjectType        { return ObjectTypePecorinoRefund }
func (OrderObject) ObjectType() ObjectType           { return ObjectTypeOrder }
func (PecorinoAwardReturn) ObjectType() ObjectType   { return ObjectTypePecorinoAwardReturn }
func (EmailMessage) ObjectType() ObjectType          { return ObjectTypeEmailMessage }

func (SeatReservationObject) actionObject() {}
func (CreditCardObject) actionObject()      {}
func (PecorinoPaymentObject) actionObject() {}
func (PecorinoAwardObject) actionObject()   {}
func (MvtkObject) actionObject()            {}
func (CreditCardSettlement) actionObject()  {}
func (PecorinoSettlement) actionObject()    {}
func (MvtkUse) actionObject()               {}
func (PecorinoAwardGrant) actionObject()    {}
func (CreditCardRefund) actionObject()      {}
func (PecorinoRefund) actionObject()        {}
func (OrderObject) actionObject()           {}
func (PecorinoAwardReturn) actionObject()   {}
func (EmailMessage) actionObject()          {}

func (SeatReservationResult) actionResult()      {}
func (CreditCardAuthResult) actionResult()       {}
func (PecorinoPaymentResult) actionResult()      {}
func (PecorinoAwardResult) actionResult()        {}
func (MvtkResult) actionResult()                 {}
func (CreditCardSettlementResult) actionResult() {}
func (CreditCardRefundResult) actionResult()     {}
func (PecorinoRefundResult) actionResult()       {}
func (EmptyResult) actionResult()                {}

// DecodeActionObject восстанавливает объект по тегу.
func DecodeActionObject(t ObjectType, raw json.RawMessage) (ActionObject, error) {
	switch t {
	case ObjectTypeSeatReservation:
		return decodeObject[SeatReservationObject](raw)
	case ObjectTypeCreditCard:
		return decodeObject[CreditCardObject](raw)
	case ObjectTypePecorinoPayment:
		return decodeObject[PecorinoPaymentObject](raw)
	case ObjectTypePecorinoAward:
		return decodeObject[PecorinoAwardObject](raw)
	case ObjectTypeMvtk:
		return decodeObject[MvtkObject](raw)
	case ObjectTypeCreditCardSettlement:
		return decodeObject[CreditCardSettlement](raw)
	case ObjectTypePecorinoSettlement:
		return decodeObject[PecorinoSettlement](raw)
	case ObjectTypeMvtkUse:
		return decodeObject[MvtkUse](raw)
	case ObjectTypePecorinoAwardGrant:
		return decodeObject[PecorinoAwardGrant](raw)
	case ObjectTypeCreditCardRefund:
		return decodeObject[CreditCardRefund](raw)
	case ObjectTypePecorinoRefund:
		return decodeObject[PecorinoRefund](raw)
	case ObjectTypeOrder:
		return decodeObject[OrderObject](raw)
	case ObjectTypePecorinoAwardReturn:
		return decodeObject[PecorinoAwardReturn](raw)
	case ObjectTypeEmailMessage:
		return decodeObject[EmailMessage](raw)
	default:
		return nil, NotImplemented(fmt.Sprintf("action object type %q not implemented", t))
	}
}

// DecodeActionResult восстанавливает результат по тегу объекта действия.
func DecodeActionResult(t ObjectType, raw json.RawMessage) (ActionResult, error) {
	switch t {
	case ObjectTypeSeatReservation:
		return decodeResult[SeatReservationResult](raw)
	case ObjectTypeCreditCard:
		return decodeResult[CreditCardAuthResult](raw)
	case ObjectTypePecorinoPayment:
		return decodeResult[PecorinoPaymentResult](raw)
	case ObjectTypePecorinoAward:
		return decodeResult[PecorinoAwardResult](raw)
	case ObjectTypeMvtk:
		return decodeResult[MvtkResult](raw)
	case ObjectTypeCreditCardSettlement:
		return decodeResult[CreditCardSettlementResult](raw)
	case ObjectTypeCreditCardRefund:
		return decodeResult[CreditCardRefundResult](raw)
	case ObjectTypePecorinoRefund:
		return decodeResult[PecorinoRefundResult](raw)
	case ObjectTypePecorinoSettlement, ObjectTypeMvtkUse, ObjectTypePecorinoAwardGrant,
		ObjectTypeOrder, ObjectTypePecorinoAwardReturn, ObjectTypeEmailMessage:
		return decodeResult[EmptyResult](raw)
	default:
		return nil, NotImplemented(fmt.Sprintf("action result for object type %q not implemented", t))
	}
}

func decodeObject[T ActionObject](raw json.RawMessage) (ActionObject, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}

func decodeResult[T ActionResult](raw json.RawMessage) (ActionResult, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}

// AuthorizedPrice возвращает цену, зафиксированную результатом авторизации.
func AuthorizedPrice(a Action) (int, bool) {
	switch r := a.Result.(type) {
	case SeatReservationResult:
		return r.Price, true
	case CreditCardAuthResult:
		return r.Price, true
	case PecorinoPaymentResult:
		return r.Price, true
	case PecorinoAwardResult:
		return r.Price, true
	case MvtkResult:
		return r.Price, true
	default:
		return 0, false
	}
}
