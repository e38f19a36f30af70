package domain

import "time"

// JobCd: код операции кредитного шлюза GMO.
type JobCd string

const (
	JobCdAuth    JobCd = "AUTH"
	JobCdSales   JobCd = "SALES"
	JobCdVoid    JobCd = "VOID"
	JobCdCapture JobCd = "CAPTURE"
)

// TradeStatus: состояние сделки в шлюзе. Значения совпадают с JobCd для Auth/Sales/Void.
type TradeStatus string

const (
	TradeStatusUnprocessed TradeStatus = "UNPROCESSED"
	TradeStatusAuth        TradeStatus = "AUTH"
	TradeStatusSales       TradeStatus = "SALES"
	TradeStatusVoid        TradeStatus = "VOID"
	TradeStatusCapture     TradeStatus = "CAPTURE"
)

type EntryTranArgs struct {
	ShopID   string `json:"shopId"`
	ShopPass string `json:"shopPass"`
	OrderID  string `json:"orderId"`
	JobCd    JobCd  `json:"jobCd"`
	Amount   int    `json:"amount"`
}

type EntryTranResult struct {
	AccessID   string `json:"accessId"`
	AccessPass string `json:"accessPass"`
}

type ExecTranArgs struct {
	AccessID   string `json:"accessId"`
	AccessPass string `json:"accessPass"`
	OrderID    string `json:"orderId"`
	Method     string `json:"method"`
	Token      string `json:"token,omitempty"`
	SiteID     string `json:"siteId,omitempty"`
	SitePass   string `json:"sitePass,omitempty"`
	MemberID   string `json:"memberId,omitempty"`
	CardSeq    string `json:"cardSeq,omitempty"`
}

type ExecTranResult struct {
	ACS      string `json:"acs"`
	Forward  string `json:"forward"`
	Method   string `json:"method"`
	Approve  string `json:"approve"`
	TranID   string `json:"tranId"`
	TranDate string `json:"tranDate"`
}

type SearchTradeArgs struct {
	ShopID   string `json:"shopId"`
	ShopPass string `json:"shopPass"`
	OrderID  string `json:"orderId"`
}

// Trade: текущее состояние сделки по orderId.
type Trade struct {
	OrderID    string      `json:"orderId"`
	Status     TradeStatus `json:"status"`
	JobCd      JobCd       `json:"jobCd"`
	AccessID   string      `json:"accessId"`
	AccessPass string      `json:"accessPass"`
	Amount     int         `json:"amount"`
	Forward    string      `json:"forward"`
	Approve    string      `json:"approve"`
	TranID     string      `json:"tranId"`
	TranDate   string      `json:"tranDate"`
}

type AlterTranArgs struct {
	ShopID     string `json:"shopId"`
	ShopPass   string `json:"shopPass"`
	AccessID   string `json:"accessId"`
	AccessPass string `json:"accessPass"`
	JobCd      JobCd  `json:"jobCd"`
	// Amount обязателен для Sales; для Void не передаётся.
	Amount int `json:"amount,omitempty"`
}

// ChangeTranArgs меняет сумму подтверждённой сделки (возврат с удержанием сбора).
type ChangeTranArgs struct {
	ShopID     string `json:"shopId"`
	ShopPass   string `json:"shopPass"`
	AccessID   string `json:"accessId"`
	AccessPass string `json:"accessPass"`
	JobCd      JobCd  `json:"jobCd"`
	Amount     int    `json:"amount"`
}

type AlterTranResult struct {
	AccessID   string `json:"accessId"`
	AccessPass string `json:"accessPass"`
	Forward    string `json:"forward"`
	Approve    string `json:"approve"`
	TranID     string `json:"tranId"`
	TranDate   string `json:"tranDate"`
}

// AlterTranResultFromTrade строит результат из уже существующего состояния сделки.
func AlterTranResultFromTrade(t Trade) AlterTranResult {
	return AlterTranResult{
		AccessID:   t.AccessID,
		AccessPass: t.AccessPass,
		Forward:    t.Forward,
		Approve:    t.Approve,
		TranID:     t.TranID,
		TranDate:   t.TranDate,
	}
}

// PecorinoTransactionType: вид транзакции в журнале баллов.
type PecorinoTransactionType string

const (
	PecorinoDeposit  PecorinoTransactionType = "Deposit"
	PecorinoWithdraw PecorinoTransactionType = "Withdraw"
	PecorinoPay      PecorinoTransactionType = "Pay"
	PecorinoTransfer PecorinoTransactionType = "Transfer"
)

// PecorinoAccountTypePoint: тип счёта для бонусных баллов.
const PecorinoAccountTypePoint = "Point"

type PecorinoParty struct {
	TypeOf string `json:"typeOf"`
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url,omitempty"`
}

type PecorinoTransactionObject struct {
	Amount            int    `json:"amount"`
	FromAccountNumber string `json:"fromAccountNumber,omitempty"`
	ToAccountNumber   string `json:"toAccountNumber,omitempty"`
	Notes             string `json:"notes,omitempty"`
	AccountType       string `json:"accountType,omitempty"`
}

// PecorinoTransaction: снимок транзакции, открытой в журнале баллов.
type PecorinoTransaction struct {
	ID        string                    `json:"id"`
	TypeOf    PecorinoTransactionType   `json:"typeOf"`
	Agent     PecorinoParty             `json:"agent"`
	Recipient PecorinoParty             `json:"recipient"`
	Object    PecorinoTransactionObject `json:"object"`
	Expires   time.Time                 `json:"expires"`
}

type PecorinoStartParams struct {
	Expires           time.Time
	Agent             PecorinoParty
	Recipient         PecorinoParty
	Amount            int
	Notes             string
	AccountType       string
	FromAccountNumber string
	ToAccountNumber   string
}

// SeatHoldRequest: параметры временной брони мест во внешней системе.
type SeatHoldRequest struct {
	TheaterCode     string   `json:"theaterCode"`
	EventIdentifier string   `json:"eventIdentifier"`
	Seats           []string `json:"seats"`
}

// SeatHold: ответ внешней системы на временную бронь.
type SeatHold struct {
	HoldNumber string   `json:"holdNumber"`
	Seats      []string `json:"seats"`
}
