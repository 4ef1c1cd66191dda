package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pavitra93/go-planning-dashboard/shared/models"
	"github.com/pavitra93/go-planning-dashboard/shared/store"
)

var ErrCompanyNotFound = errors.New("company not found")

// CompanySource returns the current state of a company
type CompanySource interface {
	Company(ctx context.Context, id uuid.UUID) (models.Company, error)
}

// CompanyCache reads companies from the store and keeps each one for ttl, so
// a change to access flags or the active bit is seen within ttl. A ttl of
// zero or less disables caching.
type CompanyCache struct {
	companies store.Table[models.Company]
	cache     *expirable.LRU[uuid.UUID, models.Company]
}

func NewCompanyCache(companies store.Table[models.Company], size int, ttl time.Duration) *CompanyCache {
	cc := &CompanyCache{companies: companies}
	if ttl > 0 {
		cc.cache = expirable.NewLRU[uuid.UUID, models.Company](size, nil, ttl)
	}
	return cc
}

func (cc *CompanyCache) Company(ctx context.Context, id uuid.UUID) (models.Company, error) {
	if cc.cache != nil {
		if company, ok := cc.cache.Get(id); ok {
			return company, nil
		}
	}

	rows, err := cc.companies.Select(ctx, store.Filter{"id": id})
	if err != nil && !store.IsNoRows(err) {
		return models.Company{}, fmt.Errorf("failed to load company %s: %w", id, err)
	}
	if len(rows) == 0 {
		return models.Company{}, ErrCompanyNotFound
	}

	if cc.cache != nil {
		cc.cache.Add(id, rows[0])
	}
	return rows[0], nil
}
