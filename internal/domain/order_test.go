package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

func TestOwnershipInfoHasAward(t *testing.T) {
	info := domain.OwnershipInfo{Awards: []string{"Other", domain.AwardPecorinoPayment}}
	assert.True(t, info.HasAward(domain.AwardPecorinoPayment))
	assert.False(t, domain.OwnershipInfo{}.HasAward(domain.AwardPecorinoPayment))
}

func TestOrganizationParticipantDropsShopCredentials(t *testing.T) {
	org := domain.Organization{
		ID:      "seller-1",
		TypeOf:  domain.ParticipantMovieTheater,
		Name:    "Cinema",
		GMOInfo: &domain.GMOShopInfo{ShopID: "shop-1", ShopPass: "secret"},
	}
	p := org.Participant()
	assert.Equal(t, "seller-1", p.ID)
	assert.Equal(t, domain.ParticipantMovieTheater, p.TypeOf)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
}

func TestOrderJSONFieldNames(t *testing.T) {
	order := domain.Order{
		OrderNumber: "20261014118-1",
		OrderStatus: domain.OrderStatusDelivered,
		Price:       3600,
		OrderDate:   time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(order)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "OrderDelivered", fields["orderStatus"])
	assert.Equal(t, "20261014118-1", fields["orderNumber"])
	assert.NotContains(t, fields, "discounts")
}
