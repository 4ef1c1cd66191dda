//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/pavitra93/go-planning-dashboard/shared/config"
	"github.com/pavitra93/go-planning-dashboard/shared/models"
)

func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "planboard",
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "password",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=postgres password=password dbname=planboard sslmode=disable", host, port.Port())
	db, err := config.OpenDatabase(dsn)
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db, config.PlanningModels()...))
	return db
}

func TestGormTable(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	require.NoError(t, db.Create(&models.Company{ID: acmeID, Name: "Acme", IsActive: true}).Error)

	table, err := NewGormTable[models.CompetitorMatrix](db, OrderBy("id"))
	require.NoError(t, err)

	m := models.CompetitorMatrix{Name: "Q1"}
	m.CompanyID = acmeID
	require.NoError(t, m.AddCriterion("Price"))
	inserted, err := table.Insert(ctx, m)
	require.NoError(t, err)
	require.NotZero(t, inserted.ID)

	edited := inserted.Clone()
	require.NoError(t, edited.AddCompetitor("Hooli"))
	require.NoError(t, edited.SetScore("Hooli", "Price", 4))
	filter := Filter{models.ColumnID: inserted.ID, models.ColumnTenant: acmeID}
	require.NoError(t, table.Update(ctx, edited.Patch(), filter))

	rows, err := table.Select(ctx, filter)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []models.RankEntry{{Name: "Hooli", Total: 4}}, rows[0].Ranking())

	other := Filter{models.ColumnID: inserted.ID, models.ColumnTenant: globexID}
	assert.ErrorIs(t, table.Update(ctx, map[string]interface{}{"nome": "x"}, other), ErrNoRows)
	assert.ErrorIs(t, table.Delete(ctx, other), ErrNoRows)
	assert.ErrorIs(t, table.Delete(ctx, Filter{}), ErrMissingFilter)

	require.NoError(t, table.Delete(ctx, filter))
	rows, err = table.Select(ctx, filter)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGormTableKeepsFalseBooleans(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	channels, err := NewGormTable[models.Channel](db)
	require.NoError(t, err)

	row := models.Channel{Name: "Radio", Active: false}
	row.CompanyID = acmeID
	inserted, err := channels.Insert(ctx, row)
	require.NoError(t, err)
	assert.False(t, inserted.Active)

	rows, err := channels.Select(ctx, Filter{models.ColumnID: inserted.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Active)

	companies, err := NewGormTable[models.Company](db)
	require.NoError(t, err)
	company, err := companies.Insert(ctx, models.Company{ID: globexID, Name: "Globex", IsActive: false})
	require.NoError(t, err)
	assert.False(t, company.IsActive)

	stored, err := companies.Select(ctx, Filter{"id": globexID})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.False(t, stored[0].IsActive)
}
