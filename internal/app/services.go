package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/service/authorize"
	"github.com/vladislavdragonenkov/ticketing/internal/service/ledger"
	"github.com/vladislavdragonenkov/ticketing/internal/service/notification"
	"github.com/vladislavdragonenkov/ticketing/internal/service/payment"
	"github.com/vladislavdragonenkov/ticketing/internal/service/placeorder"
	"github.com/vladislavdragonenkov/ticketing/internal/service/returnorder"
)

// Services: операции транзакций, доступные встраивающему коду.
type Services struct {
	Authorize   *authorize.Service
	PlaceOrder  *placeorder.Service
	ReturnOrder *returnorder.Service
	Payment     *payment.Service
}

func newServices(cfg Config, deps *runtimeDependencies, l *ledger.Ledger, renderer *notification.Renderer) Services {
	return Services{
		Authorize: authorize.NewService(authorize.Dependencies{
			Ledger:        l,
			Transactions:  deps.transactions,
			Organizations: deps.orgs,
			Ownership:     deps.ownership,
			Seats:         deps.seats,
			CreditCards:   deps.cards,
			Pecorino:      deps.pecorino,
			GMOSite:       authorize.GMOSite{ID: cfg.Gateways.GMO.SiteID, Pass: cfg.Gateways.GMO.SitePass},
			Logger:        log.WithField("component", "authorize"),
		}),
		PlaceOrder: placeorder.NewService(placeorder.Dependencies{
			Ledger:        l,
			Transactions:  deps.transactions,
			Orders:        deps.orders,
			Organizations: deps.orgs,
			Tasks:         deps.tasks,
			Renderer:      renderer,
			Logger:        log.WithField("component", "placeorder"),
		}),
		ReturnOrder: returnorder.NewService(returnorder.Dependencies{
			Ledger:        l,
			Transactions:  deps.transactions,
			Orders:        deps.orders,
			Organizations: deps.orgs,
			Tasks:         deps.tasks,
			Renderer:      renderer,
			Logger:        log.WithField("component", "returnorder"),
		}),
		Payment: payment.NewService(payment.Dependencies{
			Ledger:        l,
			Transactions:  deps.transactions,
			Orders:        deps.orders,
			Organizations: deps.orgs,
			Tasks:         deps.tasks,
			CreditCards:   deps.cards,
			Pecorino:      deps.pecorino,
			Seats:         deps.seats,
			Logger:        log.WithField("component", "payment"),
		}),
	}
}
