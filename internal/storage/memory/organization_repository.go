package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// organizationRepositoryInMemory: справочник продавцов в памяти.
type organizationRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Organization
}

// NewOrganizationRepository создаёт справочник продавцов.
func NewOrganizationRepository(orgs ...domain.Organization) *organizationRepositoryInMemory {
	r := &organizationRepositoryInMemory{items: make(map[string]domain.Organization)}
	for _, org := range orgs {
		r.Add(org)
	}
	return r
}

// Add добавляет или заменяет продавца.
func (r *organizationRepositoryInMemory) Add(org domain.Organization) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[org.TypeOf+"/"+org.ID] = org
}

// FindByID возвращает продавца заданного вида.
func (r *organizationRepositoryInMemory) FindByID(_ context.Context, typeOf, id string) (domain.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	org, ok := r.items[typeOf+"/"+id]
	if !ok {
		return domain.Organization{}, domain.NotFound("organization")
	}
	return org, nil
}

// ownershipInfoRepositoryInMemory хранит членства в программах лояльности.
type ownershipInfoRepositoryInMemory struct {
	mu    sync.RWMutex
	items []domain.OwnershipInfo
}

// NewOwnershipInfoRepository создаёт хранилище членств.
func NewOwnershipInfoRepository(infos ...domain.OwnershipInfo) *ownershipInfoRepositoryInMemory {
	return &ownershipInfoRepositoryInMemory{items: append([]domain.OwnershipInfo(nil), infos...)}
}

// Add добавляет членство.
func (r *ownershipInfoRepositoryInMemory) Add(info domain.OwnershipInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, info)
}

// SearchProgramMemberships возвращает членства, действующие в момент at.
func (r *ownershipInfoRepositoryInMemory) SearchProgramMemberships(_ context.Context, ownedBy string, at time.Time) ([]domain.OwnershipInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.OwnershipInfo
	for _, info := range r.items {
		if info.OwnedBy != ownedBy {
			continue
		}
		if at.Before(info.OwnedFrom) || !at.Before(info.OwnedThrough) {
			continue
		}
		result = append(result, info)
	}
	return result, nil
}

var (
	_ domain.OrganizationRepository  = (*organizationRepositoryInMemory)(nil)
	_ domain.OwnershipInfoRepository = (*ownershipInfoRepositoryInMemory)(nil)
)
