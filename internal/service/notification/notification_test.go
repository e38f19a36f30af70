package notification

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/service/ledger"
	"github.com/vladislavdragonenkov/ticketing/internal/storage/memory"
)

func mail() OrderMail {
	return OrderMail{
		Order: domain.Order{
			OrderNumber:        "20261014118-00000001",
			ConfirmationNumber: "00000001",
			Price:              12300,
			Event:              domain.ScreeningEvent{Name: "Feature", StartDate: "2026-10-14T19:00:00+09:00"},
			AcceptedOffers:     []domain.SeatOffer{{SeatSection: "A", SeatNumber: "1", TicketName: "Adult", Price: 12300}},
		},
		Contact: domain.CustomerContact{FamilyName: "Yamada", GivenName: "Taro", Email: "taro@example.com"},
		Seller:  domain.Organization{TypeOf: domain.ParticipantMovieTheater, Name: "Cinema", Email: "noreply@cinema.example", Telephone: "0312345678"},
	}
}

func TestRendererPlaceOrder(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	msg, err := r.Message(KindPlaceOrder, mail())
	require.NoError(t, err)
	assert.Equal(t, "placeOrder-20261014118-00000001", msg.Identifier)
	assert.Equal(t, "Cinema: order 20261014118-00000001 confirmed", msg.About)
	assert.Equal(t, "taro@example.com", msg.ToRecipient.Email)
	assert.Equal(t, "Yamada Taro", msg.ToRecipient.Name)
	assert.Equal(t, "noreply@cinema.example", msg.Sender.Email)
	assert.Contains(t, msg.Text, "A-1 Adult 12,300 JPY")
	assert.Contains(t, msg.Text, "Tel: 0312345678")
}

func TestRendererRefundOrderSubtractsFee(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	data := mail()
	data.CancellationFee = 300
	msg, err := r.Message(KindRefundOrder, data)
	require.NoError(t, err)
	assert.Equal(t, "refundOrder-20261014118-00000001", msg.Identifier)
	assert.Contains(t, msg.Text, "Refund amount:       12,000 JPY")
	assert.Contains(t, msg.Text, "Cancellation fee:    300 JPY")
}

func TestFormatYen(t *testing.T) {
	cases := map[int]string{0: "0 JPY", 999: "999 JPY", 1000: "1,000 JPY", 1234567: "1,234,567 JPY", -1500: "-1,500 JPY"}
	for in, want := range cases {
		assert.Equal(t, want, formatYen(in))
	}
}

type failingMailer struct{ err error }

func (m failingMailer) Send(context.Context, domain.EmailMessage) error { return m.err }

func sendAttrs(t *testing.T) domain.ActionAttributes {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)
	msg, err := r.Message(KindPlaceOrder, mail())
	require.NoError(t, err)
	return domain.ActionAttributes{
		TypeOf:  domain.ActionTypeSend,
		Object:  msg,
		Purpose: domain.OrderRef("20261014118-00000001"),
	}
}

func TestSenderCompletesAction(t *testing.T) {
	ctx := context.Background()
	actions := memory.NewActionRepository()
	s := NewSender(ledger.New(actions), LogMailer{}, nil)

	require.NoError(t, s.SendEmailMessage(ctx, sendAttrs(t)))
	all := actions.All()
	require.Len(t, all, 1)
	assert.Equal(t, domain.ActionStatusCompleted, all[0].ActionStatus)
}

func TestSenderGivesUpOnMailerFailure(t *testing.T) {
	ctx := context.Background()
	actions := memory.NewActionRepository()
	boom := errors.New("relay refused")
	s := NewSender(ledger.New(actions), failingMailer{err: boom}, nil)

	err := s.SendEmailMessage(ctx, sendAttrs(t))
	require.ErrorIs(t, err, boom)
	all := actions.All()
	require.Len(t, all, 1)
	assert.Equal(t, domain.ActionStatusFailed, all[0].ActionStatus)
	assert.Equal(t, "relay refused", all[0].Error.Message)
}

func TestSenderRejectsNonEmailObject(t *testing.T) {
	s := NewSender(ledger.New(memory.NewActionRepository()), LogMailer{}, nil)
	err := s.SendEmailMessage(context.Background(), domain.ActionAttributes{
		TypeOf: domain.ActionTypeSend,
		Object: domain.OrderObject{},
	})
	require.ErrorIs(t, err, domain.ErrArgument)
}

func TestSMTPMailerEncodesMessage(t *testing.T) {
	var gotTo []string
	var gotBody string
	m := NewSMTPMailer(SMTPConfig{Addr: "smtp.example:587", Username: "u", Password: "p"})
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "smtp.example:587", addr)
		assert.NotNil(t, a)
		assert.Equal(t, "noreply@cinema.example", from)
		gotTo = to
		gotBody = string(msg)
		return nil
	}

	attrs := sendAttrs(t)
	msg, _ := domain.ObjectAs[domain.EmailMessage](attrs)
	require.NoError(t, m.Send(context.Background(), msg))
	assert.Equal(t, []string{"taro@example.com"}, gotTo)
	assert.True(t, strings.HasPrefix(gotBody, "From: Cinema <noreply@cinema.example>\r\n"))
	assert.Contains(t, gotBody, "Subject: Cinema: order 20261014118-00000001 confirmed\r\n")
}

func TestSMTPMailerWrapsRelayErrors(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Addr: "smtp.example:25"})
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("421 busy") }

	err := m.Send(context.Background(), domain.EmailMessage{ToRecipient: domain.EmailAddress{Email: "a@b.c"}})
	var ext *domain.ExternalError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "SMTP", ext.Service)
}
