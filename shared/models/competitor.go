package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Score bounds for a competitor on one criterion
const (
	MinScore = 0
	MaxScore = 5
)

var (
	ErrDuplicateCriterion  = errors.New("criterion already exists")
	ErrDuplicateCompetitor = errors.New("competitor already exists")
	ErrUnknownCriterion    = errors.New("criterion not found")
	ErrUnknownCompetitor   = errors.New("competitor not found")
	ErrScoreOutOfRange     = fmt.Errorf("score must be between %d and %d", MinScore, MaxScore)
	ErrEmptyName           = errors.New("name must not be empty")
)

// Criteria is the ordered list of comparison criteria, stored as jsonb
type Criteria []string

func (c Criteria) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(c))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *Criteria) Scan(src interface{}) error {
	return scanJSON(src, c)
}

// Competitor is one row of the matrix: a name and a score per criterion
type Competitor struct {
	Name   string         `json:"nome"`
	Scores map[string]int `json:"notas"`
}

// Competitors is stored as jsonb
type Competitors []Competitor

func (c Competitors) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]Competitor(c))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *Competitors) Scan(src interface{}) error {
	return scanJSON(src, c)
}

type CompetitorMatrix struct {
	TenantRecord
	Name        string      `json:"nome" gorm:"column:nome;not null"`
	Criteria    Criteria    `json:"criterios" gorm:"column:criterios;type:jsonb;default:'[]'"`
	Competitors Competitors `json:"concorrentes" gorm:"column:concorrentes;type:jsonb;default:'[]'"`
}

func (CompetitorMatrix) TableName() string {
	return "matrizes_concorrentes"
}

// Clone returns a deep copy so edits never alias a cached row
func (m CompetitorMatrix) Clone() CompetitorMatrix {
	out := m
	if m.Criteria != nil {
		out.Criteria = append(Criteria(nil), m.Criteria...)
	}
	if m.Competitors != nil {
		out.Competitors = make(Competitors, len(m.Competitors))
		for i, c := range m.Competitors {
			scores := make(map[string]int, len(c.Scores))
			for k, v := range c.Scores {
				scores[k] = v
			}
			out.Competitors[i] = Competitor{Name: c.Name, Scores: scores}
		}
	}
	return out
}

// Patch returns the column patch that persists the nested lists
func (m CompetitorMatrix) Patch() map[string]interface{} {
	criteria := m.Criteria
	if criteria == nil {
		criteria = Criteria{}
	}
	competitors := m.Competitors
	if competitors == nil {
		competitors = Competitors{}
	}
	return map[string]interface{}{
		"criterios":    criteria,
		"concorrentes": competitors,
	}
}

func (m *CompetitorMatrix) criterionIndex(name string) int {
	for i, c := range m.Criteria {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

func (m *CompetitorMatrix) competitorIndex(name string) int {
	for i, c := range m.Competitors {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

func (m *CompetitorMatrix) AddCriterion(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if m.criterionIndex(name) >= 0 {
		return ErrDuplicateCriterion
	}
	m.Criteria = append(m.Criteria, name)
	return nil
}

// RemoveCriterion drops the criterion and every score given for it
func (m *CompetitorMatrix) RemoveCriterion(name string) error {
	i := m.criterionIndex(name)
	if i < 0 {
		return ErrUnknownCriterion
	}
	removed := m.Criteria[i]
	m.Criteria = append(m.Criteria[:i], m.Criteria[i+1:]...)
	for _, c := range m.Competitors {
		delete(c.Scores, removed)
	}
	return nil
}

func (m *CompetitorMatrix) AddCompetitor(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if m.competitorIndex(name) >= 0 {
		return ErrDuplicateCompetitor
	}
	m.Competitors = append(m.Competitors, Competitor{Name: name, Scores: map[string]int{}})
	return nil
}

func (m *CompetitorMatrix) RemoveCompetitor(name string) error {
	i := m.competitorIndex(name)
	if i < 0 {
		return ErrUnknownCompetitor
	}
	m.Competitors = append(m.Competitors[:i], m.Competitors[i+1:]...)
	return nil
}

// SetScore records the score of competitor on criterion
func (m *CompetitorMatrix) SetScore(competitor, criterion string, score int) error {
	if score < MinScore || score > MaxScore {
		return ErrScoreOutOfRange
	}
	ci := m.criterionIndex(criterion)
	if ci < 0 {
		return ErrUnknownCriterion
	}
	pi := m.competitorIndex(competitor)
	if pi < 0 {
		return ErrUnknownCompetitor
	}
	if m.Competitors[pi].Scores == nil {
		m.Competitors[pi].Scores = map[string]int{}
	}
	m.Competitors[pi].Scores[m.Criteria[ci]] = score
	return nil
}

// RankEntry is a competitor's total over the current criteria
type RankEntry struct {
	Name  string `json:"nome"`
	Total int    `json:"total"`
}

// Ranking sums each competitor's scores over the current criteria, highest
// first, ties broken by name
func (m CompetitorMatrix) Ranking() []RankEntry {
	out := make([]RankEntry, 0, len(m.Competitors))
	for _, c := range m.Competitors {
		total := 0
		for _, crit := range m.Criteria {
			total += c.Scores[crit]
		}
		out = append(out, RankEntry{Name: c.Name, Total: total})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Name < out[j].Name
	})
	return out
}
