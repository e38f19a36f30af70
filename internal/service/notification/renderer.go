// Package notification рендерит письма покупателю и исполняет задачу SendEmailMessage.
package notification

import (
	"bytes"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Kind: вид письма; совпадает с префиксом имени шаблона и identifier письма.
type Kind string

const (
	KindPlaceOrder  Kind = "placeOrder"
	KindRefundOrder Kind = "refundOrder"
)

// OrderMail: данные для шаблонов писем по заказу.
type OrderMail struct {
	Order           domain.Order
	Contact         domain.CustomerContact
	Seller          domain.Organization
	CancellationFee int
}

// Renderer собирает письма из встроенных шаблонов.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer разбирает встроенные шаблоны.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("mail").Funcs(template.FuncMap{
		"yen":    formatYen,
		"refund": func(price, fee int) int { return price - fee },
	}).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Message рендерит письмо вида kind от продавца на адрес покупателя.
func (r *Renderer) Message(kind Kind, data OrderMail) (domain.EmailMessage, error) {
	subject, err := r.execute(string(kind)+".subject.tmpl", data)
	if err != nil {
		return domain.EmailMessage{}, err
	}
	text, err := r.execute(string(kind)+".text.tmpl", data)
	if err != nil {
		return domain.EmailMessage{}, err
	}

	id := fmt.Sprintf("%s-%s", kind, data.Order.OrderNumber)
	return domain.EmailMessage{
		Identifier: id,
		Name:       id,
		Sender: domain.EmailAddress{
			TypeOf: data.Seller.TypeOf,
			Name:   data.Seller.Name,
			Email:  data.Seller.Email,
		},
		ToRecipient: domain.EmailAddress{
			TypeOf: domain.ParticipantPerson,
			Name:   strings.TrimSpace(data.Contact.FamilyName + " " + data.Contact.GivenName),
			Email:  data.Contact.Email,
		},
		About: strings.TrimSpace(subject),
		Text:  text,
	}, nil
}

func (r *Renderer) execute(name string, data OrderMail) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// formatYen печатает сумму с разделителями разрядов: 12,300 JPY.
func formatYen(amount int) string {
	digits := strconv.Itoa(amount)
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return sign + b.String() + " JPY"
}
