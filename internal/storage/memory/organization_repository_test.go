package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/storage/memory"
)

func TestOrganizationRepository_FindByID(t *testing.T) {
	repo := memory.NewOrganizationRepository(domain.Organization{ID: "seller-1", TypeOf: domain.ParticipantMovieTheater, Name: "Cinema"})

	org, err := repo.FindByID(context.Background(), domain.ParticipantMovieTheater, "seller-1")
	require.NoError(t, err)
	require.Equal(t, "Cinema", org.Name)

	_, err = repo.FindByID(context.Background(), "Corporation", "seller-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOwnershipInfoRepository_ActiveMemberships(t *testing.T) {
	now := time.Now().UTC()
	repo := memory.NewOwnershipInfoRepository(
		domain.OwnershipInfo{ID: "m-1", OwnedBy: "agent-1", Awards: []string{domain.AwardPecorinoPayment}, OwnedFrom: now.Add(-time.Hour), OwnedThrough: now.Add(time.Hour)},
		domain.OwnershipInfo{ID: "m-2", OwnedBy: "agent-1", OwnedFrom: now.Add(-2 * time.Hour), OwnedThrough: now.Add(-time.Hour)},
	)
	repo.Add(domain.OwnershipInfo{ID: "m-3", OwnedBy: "agent-2", OwnedFrom: now.Add(-time.Hour), OwnedThrough: now.Add(time.Hour)})

	infos, err := repo.SearchProgramMemberships(context.Background(), "agent-1", now)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.True(t, infos[0].HasAward(domain.AwardPecorinoPayment))
}
