package gmo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

func authorize(t *testing.T, s *Simulator, orderID string, amount int) domain.EntryTranResult {
	t.Helper()
	ctx := context.Background()
	entry, err := s.EntryTran(ctx, domain.EntryTranArgs{OrderID: orderID, JobCd: domain.JobCdAuth, Amount: amount})
	require.NoError(t, err)
	_, err = s.ExecTran(ctx, domain.ExecTranArgs{AccessID: entry.AccessID, AccessPass: entry.AccessPass, OrderID: orderID, Token: "tok"})
	require.NoError(t, err)
	return entry
}

func TestSimulatorAuthCaptureVoid(t *testing.T) {
	ctx := context.Background()
	s := NewSimulator()
	entry := authorize(t, s, "ORD-1", 1800)

	trade, ok := s.Trade("ORD-1")
	require.True(t, ok)
	assert.Equal(t, domain.TradeStatusAuth, trade.Status)

	_, err := s.AlterTran(ctx, domain.AlterTranArgs{AccessID: entry.AccessID, AccessPass: entry.AccessPass, JobCd: domain.JobCdSales, Amount: 1800})
	require.NoError(t, err)

	_, err = s.AlterTran(ctx, domain.AlterTranArgs{AccessID: entry.AccessID, AccessPass: entry.AccessPass, JobCd: domain.JobCdSales, Amount: 1800})
	require.Error(t, err, "second capture must be rejected")

	trade, err = s.SearchTrade(ctx, domain.SearchTradeArgs{OrderID: "ORD-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusSales, trade.Status)
	assert.Equal(t, domain.JobCdSales, trade.JobCd)

	_, err = s.AlterTran(ctx, domain.AlterTranArgs{AccessID: entry.AccessID, AccessPass: entry.AccessPass, JobCd: domain.JobCdVoid})
	require.NoError(t, err)
	trade, _ = s.Trade("ORD-1")
	assert.Equal(t, domain.TradeStatusVoid, trade.Status)

	calls := s.Calls()
	assert.Equal(t, 1, calls.EntryTran)
	assert.Equal(t, 3, calls.AlterTran)
	assert.Equal(t, 1, calls.SearchTrade)
}

func TestSimulatorChangeTranKeepsFee(t *testing.T) {
	ctx := context.Background()
	s := NewSimulator()
	entry := authorize(t, s, "ORD-2", 2000)
	_, err := s.AlterTran(ctx, domain.AlterTranArgs{AccessID: entry.AccessID, AccessPass: entry.AccessPass, JobCd: domain.JobCdSales, Amount: 2000})
	require.NoError(t, err)

	_, err = s.ChangeTran(ctx, domain.ChangeTranArgs{AccessID: entry.AccessID, AccessPass: entry.AccessPass, JobCd: domain.JobCdCapture, Amount: 300})
	require.NoError(t, err)

	trade, _ := s.Trade("ORD-2")
	assert.Equal(t, 300, trade.Amount)
	assert.Equal(t, domain.TradeStatusCapture, trade.Status)
}

func TestSimulatorDuplicateOrderID(t *testing.T) {
	s := NewSimulator()
	authorize(t, s, "ORD-3", 100)

	_, err := s.EntryTran(context.Background(), domain.EntryTranArgs{OrderID: "ORD-3", JobCd: domain.JobCdAuth, Amount: 100})
	var ext *domain.ExternalError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "E01", ext.Name)
}

func TestSimulatorInjectedFailure(t *testing.T) {
	s := NewSimulator()
	boom := &domain.ExternalError{Service: ServiceName, StatusCode: 502, Name: "BadGateway"}
	s.SetFailures(func(s *Simulator) { s.SearchTradeErr = boom })

	_, err := s.SearchTrade(context.Background(), domain.SearchTradeArgs{OrderID: "ORD-1"})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, s.Calls().SearchTrade)
}

func TestErrInfo(t *testing.T) {
	s := NewSimulator()
	authorize(t, s, "ORD-4", 100)
	_, err := s.EntryTran(context.Background(), domain.EntryTranArgs{OrderID: "ORD-4", JobCd: domain.JobCdAuth, Amount: 100})

	codes, ok := ErrInfo(err)
	require.True(t, ok)
	assert.Equal(t, []string{"E01040010"}, codes)

	codes, ok = ErrInfo(&domain.ExternalError{Service: ServiceName, StatusCode: 200, Name: "E92", Message: "E92000001|E92000002"})
	require.True(t, ok)
	assert.Equal(t, []string{"E92000001", "E92000002"}, codes)

	_, ok = ErrInfo(&domain.ExternalError{Service: ServiceName, StatusCode: 502, Name: "HTTPError"})
	assert.False(t, ok, "HTTP failures are not business errors")
}
