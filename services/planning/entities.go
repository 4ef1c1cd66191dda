package main

import (
	"errors"

	"gorm.io/gorm"

	"github.com/pavitra93/go-planning-dashboard/shared/collection"
	"github.com/pavitra93/go-planning-dashboard/shared/models"
	"github.com/pavitra93/go-planning-dashboard/shared/store"
)

// entity binds a record type to its URL slug, feature flag and table
type entity[T any, P models.RecordPtr[T]] struct {
	slug    string
	feature string
	def     collection.Definition[T]
	table   store.Table[T]
}

// tables groups one Table per record type
type tables struct {
	problems    store.Table[models.Problem]
	segments    store.Table[models.CustomerSegment]
	audiences   store.Table[models.TargetAudience]
	channels    store.Table[models.Channel]
	finance     store.Table[models.FinancialEntry]
	metrics     store.Table[models.Metric]
	tasks       store.Table[models.Task]
	competitors store.Table[models.CompetitorMatrix]
	benefits    store.Table[models.Benefit]
	features    store.Table[models.Feature]
}

func openTables(db *gorm.DB) *tables {
	order := store.OrderBy("id")
	return &tables{
		problems:    store.MustOpen[models.Problem](db, order),
		segments:    store.MustOpen[models.CustomerSegment](db, order),
		audiences:   store.MustOpen[models.TargetAudience](db, order),
		channels:    store.MustOpen[models.Channel](db, order),
		finance:     store.MustOpen[models.FinancialEntry](db, store.OrderBy("data DESC NULLS LAST, id")),
		metrics:     store.MustOpen[models.Metric](db, order),
		tasks:       store.MustOpen[models.Task](db, order),
		competitors: store.MustOpen[models.CompetitorMatrix](db, order),
		benefits:    store.MustOpen[models.Benefit](db, order),
		features:    store.MustOpen[models.Feature](db, order),
	}
}

func fieldErr(column, msg string) error {
	return &store.FieldError{Column: column, Err: errors.New(msg)}
}

var problemDef = collection.Definition[models.Problem]{
	Name:    "problem",
	Default: func() models.Problem { return models.Problem{} },
}

var segmentDef = collection.Definition[models.CustomerSegment]{
	Name:     "customer segment",
	Required: []string{"nome", "tipo_cliente"},
	Validate: func(s models.CustomerSegment) error {
		if s.ClientType != models.ClientTypeB2B && s.ClientType != models.ClientTypeB2C {
			return fieldErr("tipo_cliente", "must be B2B or B2C")
		}
		return nil
	},
}

var audienceDef = collection.Definition[models.TargetAudience]{
	Name:     "target audience",
	Required: []string{"nome"},
}

var channelDef = collection.Definition[models.Channel]{
	Name:     "channel",
	Required: []string{"nome"},
	Base:     func() models.Channel { return models.Channel{Active: true} },
	Validate: func(c models.Channel) error {
		if c.MonthlyCost < 0 {
			return fieldErr("custo_mensal", "must not be negative")
		}
		return nil
	},
}

var financeDef = collection.Definition[models.FinancialEntry]{
	Name:     "financial entry",
	Required: []string{"descricao", "tipo", "valor"},
	Validate: func(e models.FinancialEntry) error {
		if e.Kind != models.EntryRevenue && e.Kind != models.EntryExpense {
			return fieldErr("tipo", "must be receita or despesa")
		}
		if e.Amount < 0 {
			return fieldErr("valor", "must not be negative")
		}
		return nil
	},
}

var metricDef = collection.Definition[models.Metric]{
	Name:     "metric",
	Required: []string{"nome"},
}

var taskDef = collection.Definition[models.Task]{
	Name:     "task",
	Required: []string{"titulo"},
	Prepare: func(t *models.Task) {
		if t.Status == "" {
			t.Status = models.TaskTodo
		}
	},
	Validate: func(t models.Task) error {
		if !models.IsValidTaskStatus(t.Status) {
			return fieldErr("status", "unknown status")
		}
		if t.StartDate != nil && t.DueDate != nil && t.DueDate.Before(*t.StartDate) {
			return fieldErr("data_fim", "must not be before data_inicio")
		}
		return nil
	},
}

var competitorDef = collection.Definition[models.CompetitorMatrix]{
	Name:     "competitor matrix",
	Required: []string{"nome"},
	Validate: validateMatrix,
}

var benefitDef = collection.Definition[models.Benefit]{
	Name:     "benefit",
	Required: []string{"titulo"},
}

var featureDef = collection.Definition[models.Feature]{
	Name:     "feature",
	Required: []string{"nome"},
}

// validateMatrix checks a matrix submitted wholesale through create or update
func validateMatrix(m models.CompetitorMatrix) error {
	rebuilt := models.CompetitorMatrix{}
	for _, c := range m.Criteria {
		if err := rebuilt.AddCriterion(c); err != nil {
			return &store.FieldError{Column: "criterios", Err: err}
		}
	}
	for _, comp := range m.Competitors {
		if err := rebuilt.AddCompetitor(comp.Name); err != nil {
			return &store.FieldError{Column: "concorrentes", Err: err}
		}
		for criterion, score := range comp.Scores {
			if err := rebuilt.SetScore(comp.Name, criterion, score); err != nil {
				return &store.FieldError{Column: "concorrentes", Err: err}
			}
		}
	}
	return nil
}
