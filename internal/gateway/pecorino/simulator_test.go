package pecorino

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

func TestSimulatorPayHoldsBalanceUntilConfirm(t *testing.T) {
	ctx := context.Background()
	s := NewSimulator()
	s.OpenAccount("acc-1", 1000)
	pay := s.Service(domain.PecorinoPay, s.Endpoint())

	tx, err := pay.Start(ctx, domain.PecorinoStartParams{Amount: 800, FromAccountNumber: "acc-1"})
	require.NoError(t, err)

	_, err = pay.Start(ctx, domain.PecorinoStartParams{Amount: 300, FromAccountNumber: "acc-1"})
	require.ErrorIs(t, err, domain.ErrForbidden, "pending pay must reserve balance")

	require.NoError(t, pay.Confirm(ctx, tx.ID))
	require.NoError(t, pay.Confirm(ctx, tx.ID), "repeated confirm is a no-op")
	assert.Equal(t, 200, s.Balance("acc-1"))
	assert.Equal(t, 2, s.Calls(domain.PecorinoPay).Confirm)
}

func TestSimulatorCancel(t *testing.T) {
	ctx := context.Background()
	s := NewSimulator()
	s.OpenAccount("acc-1", 0)
	deposit := s.Service(domain.PecorinoDeposit, "")

	tx, err := deposit.Start(ctx, domain.PecorinoStartParams{Amount: 100, ToAccountNumber: "acc-1"})
	require.NoError(t, err)
	require.NoError(t, deposit.Cancel(ctx, tx.ID))
	require.NoError(t, deposit.Cancel(ctx, tx.ID))
	assert.Equal(t, "Canceled", s.State(tx.ID))
	require.ErrorIs(t, deposit.Confirm(ctx, tx.ID), domain.ErrArgument)
	assert.Equal(t, 0, s.Balance("acc-1"))
}

func TestSimulatorUnknownAccountAndKind(t *testing.T) {
	ctx := context.Background()
	s := NewSimulator()
	s.OpenAccount("acc-1", 100)

	_, err := s.Service(domain.PecorinoWithdraw, "").Start(ctx, domain.PecorinoStartParams{Amount: 10, FromAccountNumber: "missing"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	tx, err := s.Service(domain.PecorinoPay, "").Start(ctx, domain.PecorinoStartParams{Amount: 10, FromAccountNumber: "acc-1"})
	require.NoError(t, err)
	require.ErrorIs(t, s.Service(domain.PecorinoDeposit, "").Cancel(ctx, tx.ID), domain.ErrNotFound)
}

func TestSimulatorTransfer(t *testing.T) {
	ctx := context.Background()
	s := NewSimulator()
	s.OpenAccount("from", 500)
	s.OpenAccount("to", 0)
	transfer := s.Service(domain.PecorinoTransfer, "")

	tx, err := transfer.Start(ctx, domain.PecorinoStartParams{Amount: 200, FromAccountNumber: "from", ToAccountNumber: "to"})
	require.NoError(t, err)
	require.NoError(t, transfer.Confirm(ctx, tx.ID))
	assert.Equal(t, 300, s.Balance("from"))
	assert.Equal(t, 200, s.Balance("to"))
	assert.Len(t, s.Transactions(domain.PecorinoTransfer), 1)
}
