package coa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/gateway"
)

var holdReq = domain.SeatHoldRequest{TheaterCode: "118", EventIdentifier: "ev 1", Seats: []string{"A-1", "A-2"}}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{Endpoint: srv.URL + "/", RefreshToken: "refresh-1", Timeout: time.Second}, gateway.NewGuard("coa"))
}

func TestClientHold(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/theaters/118/events/ev 1/holds", r.URL.Path)
		assert.Equal(t, "Bearer refresh-1", r.Header.Get("Authorization"))

		var body domain.SeatHoldRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, holdReq, body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"holdNumber":"00000042","seats":["A-1","A-2"]}`))
	})

	hold, err := client.Hold(context.Background(), holdReq)
	require.NoError(t, err)
	assert.Equal(t, domain.SeatHold{HoldNumber: "00000042", Seats: []string{"A-1", "A-2"}}, hold)
}

func TestClientHoldConflictIsAlreadyInUse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"name":"SeatTaken","message":"seat A-1 is held"}`))
	})

	_, err := client.Hold(context.Background(), holdReq)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAlreadyInUse)
	assert.Contains(t, err.Error(), "seat A-1 is held")
}

func TestClientReleaseTreatsMissingHoldAsReleased(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/theaters/118/events/ev 1/holds/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.Release(context.Background(), holdReq, "00000042"))
	require.NoError(t, client.Release(context.Background(), holdReq, "missing"))
	assert.Equal(t, []string{"/theaters/118/events/ev 1/holds/00000042", "/theaters/118/events/ev 1/holds/missing"}, paths)
}

func TestClientReleaseUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := client.Release(context.Background(), holdReq, "00000042")
	assert.Equal(t, domain.KindServiceUnavailable, domain.KindOf(err))
}

func TestSimulatorRejectsDoubleHold(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()

	hold, err := sim.Hold(ctx, holdReq)
	require.NoError(t, err)

	_, err = sim.Hold(ctx, domain.SeatHoldRequest{TheaterCode: "118", EventIdentifier: "ev 1", Seats: []string{"A-2"}})
	assert.ErrorIs(t, err, domain.ErrAlreadyInUse)

	require.NoError(t, sim.Release(ctx, holdReq, hold.HoldNumber))
	assert.Zero(t, sim.ActiveHolds())
	_, err = sim.Hold(ctx, domain.SeatHoldRequest{TheaterCode: "118", EventIdentifier: "ev 1", Seats: []string{"A-2"}})
	assert.NoError(t, err)
	assert.Equal(t, Calls{Hold: 3, Release: 1}, sim.Calls())
}
