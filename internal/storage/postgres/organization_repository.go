package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

type organizationRepository struct {
	db *sql.DB
}

// NewOrganizationRepository создаёт справочник продавцов поверх PostgreSQL.
func NewOrganizationRepository(store *Store) domain.OrganizationRepository {
	return &organizationRepository{db: store.DB()}
}

func (r *organizationRepository) FindByID(ctx context.Context, typeOf, id string) (domain.Organization, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT doc FROM organizations WHERE type_of = $1 AND id = $2
	`, typeOf, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Organization{}, domain.NotFound("organization")
		}
		return domain.Organization{}, fmt.Errorf("select organization: %w", err)
	}

	var org domain.Organization
	if err := json.Unmarshal(doc, &org); err != nil {
		return domain.Organization{}, fmt.Errorf("decode organization: %w", err)
	}
	return org, nil
}

type ownershipInfoRepository struct {
	db *sql.DB
}

// NewOwnershipInfoRepository создаёт хранилище членств в программах лояльности.
func NewOwnershipInfoRepository(store *Store) domain.OwnershipInfoRepository {
	return &ownershipInfoRepository{db: store.DB()}
}

func (r *ownershipInfoRepository) SearchProgramMemberships(ctx context.Context, ownedBy string, at time.Time) ([]domain.OwnershipInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owned_by, program_name, awards, owned_from, owned_through
		FROM ownership_infos
		WHERE owned_by = $1 AND owned_from <= $2 AND owned_through > $2
		ORDER BY owned_from
	`, ownedBy, at)
	if err != nil {
		return nil, fmt.Errorf("search program memberships: %w", err)
	}
	defer rows.Close()

	infos := make([]domain.OwnershipInfo, 0)
	for rows.Next() {
		var (
			info   domain.OwnershipInfo
			awards []byte
		)
		if err := rows.Scan(&info.ID, &info.OwnedBy, &info.ProgramName, &awards, &info.OwnedFrom, &info.OwnedThrough); err != nil {
			return nil, fmt.Errorf("scan ownership info: %w", err)
		}
		if err := json.Unmarshal(awards, &info.Awards); err != nil {
			return nil, fmt.Errorf("decode awards: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ownership infos: %w", err)
	}
	return infos, nil
}

var (
	_ domain.OrganizationRepository  = (*organizationRepository)(nil)
	_ domain.OwnershipInfoRepository = (*ownershipInfoRepository)(nil)
)
