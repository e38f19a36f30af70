package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusProcessing: заказ создан, билеты ещё не выданы.
	OrderStatusProcessing OrderStatus = "OrderProcessing"
	// OrderStatusDelivered: билеты выданы покупателю; только такой заказ можно вернуть.
	OrderStatusDelivered OrderStatus = "OrderDelivered"
	// OrderStatusReturned: заказ возвращён.
	OrderStatusReturned OrderStatus = "OrderReturned"
)

// OrderPaymentMethod: способ оплаты, использованный в заказе.
type OrderPaymentMethod struct {
	TypeOf          PaymentMethodType `json:"typeOf"`
	Name            string            `json:"name"`
	PaymentMethodID string            `json:"paymentMethodId"`
	TotalPaymentDue int               `json:"totalPaymentDue"`
}

// OrderDiscount: скидка (ваучер), применённая к заказу.
type OrderDiscount struct {
	Name         string `json:"name"`
	Identifier   string `json:"identifier"`
	DiscountCode string `json:"discountCode"`
	Amount       int    `json:"amount"`
}

// Customer: покупатель, как он записан в заказ.
type Customer struct {
	TypeOf    string `json:"typeOf"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Telephone string `json:"telephone"`
}

// Order: заказ. Для ядра важны только OrderStatus и OrderNumber.
type Order struct {
	OrderNumber        string               `json:"orderNumber"`
	ConfirmationNumber string               `json:"confirmationNumber"`
	OrderStatus        OrderStatus          `json:"orderStatus"`
	Price              int                  `json:"price"`
	PriceCurrency      string               `json:"priceCurrency"`
	Seller             Participant          `json:"seller"`
	Customer           Customer             `json:"customer"`
	Event              ScreeningEvent       `json:"event"`
	AcceptedOffers     []SeatOffer          `json:"acceptedOffers"`
	PaymentMethods     []OrderPaymentMethod `json:"paymentMethods"`
	Discounts          []OrderDiscount      `json:"discounts,omitempty"`
	OrderDate          time.Time            `json:"orderDate"`
}

// Organization: продавец (кинотеатр).
type Organization struct {
	ID        string `json:"id"`
	TypeOf    string `json:"typeOf"`
	Name      string `json:"name"`
	Telephone string `json:"telephone"`
	URL       string `json:"url,omitempty"`
	Email     string `json:"email,omitempty"`
	// GMOInfo: магазин продавца в кредитном шлюзе; без него оплата картой невозможна.
	GMOInfo *GMOShopInfo `json:"gmoInfo,omitempty"`
}

// GMOShopInfo: учётные данные магазина в шлюзе GMO.
type GMOShopInfo struct {
	ShopID   string `json:"shopId"`
	ShopPass string `json:"shopPass"`
}

// Participant возвращает продавца как сторону транзакции.
func (o Organization) Participant() Participant {
	return Participant{TypeOf: o.TypeOf, ID: o.ID, Name: o.Name, URL: o.URL}
}

// AwardPecorinoPayment: привилегия программы лояльности, разрешающая начисление бонусов.
const AwardPecorinoPayment = "PecorinoPayment"

// OwnershipInfo: владение членством в программе лояльности.
type OwnershipInfo struct {
	ID           string    `json:"id"`
	OwnedBy      string    `json:"ownedBy"`
	ProgramName  string    `json:"programName"`
	Awards       []string  `json:"awards"`
	OwnedFrom    time.Time `json:"ownedFrom"`
	OwnedThrough time.Time `json:"ownedThrough"`
}

// HasAward сообщает, даёт ли членство указанную привилегию.
func (o OwnershipInfo) HasAward(award string) bool {
	for _, a := range o.Awards {
		if a == award {
			return true
		}
	}
	return false
}
