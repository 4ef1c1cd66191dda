package models

import "time"

// Problem is the single editable problem statement of a company
type Problem struct {
	TenantRecord
	Statement      string `json:"problema" gorm:"column:problema;type:text"`
	Causes         string `json:"causas" gorm:"column:causas;type:text"`
	Impact         string `json:"impacto" gorm:"column:impacto;type:text"`
	CurrentSolving string `json:"solucao_atual" gorm:"column:solucao_atual;type:text"`
}

func (Problem) TableName() string {
	return "problemas"
}

// Client types of a customer segment
const (
	ClientTypeB2B = "B2B"
	ClientTypeB2C = "B2C"
)

type CustomerSegment struct {
	TenantRecord
	Name        string `json:"nome" gorm:"column:nome;not null"`
	ClientType  string `json:"tipo_cliente" gorm:"column:tipo_cliente;type:varchar(10);not null"`
	Area        string `json:"area" gorm:"column:area"`
	Description string `json:"descricao" gorm:"column:descricao;type:text"`
	MarketSize  string `json:"tamanho_mercado" gorm:"column:tamanho_mercado"`
}

func (CustomerSegment) TableName() string {
	return "segmentos_clientes"
}

type TargetAudience struct {
	TenantRecord
	Name      string `json:"nome" gorm:"column:nome;not null"`
	AgeRange  string `json:"faixa_etaria" gorm:"column:faixa_etaria"`
	Location  string `json:"localizacao" gorm:"column:localizacao"`
	Income    string `json:"renda" gorm:"column:renda"`
	Interests string `json:"interesses" gorm:"column:interesses;type:text"`
	Pains     string `json:"dores" gorm:"column:dores;type:text"`
}

func (TargetAudience) TableName() string {
	return "publicos_alvo"
}

type Channel struct {
	TenantRecord
	Name        string  `json:"nome" gorm:"column:nome;not null"`
	Kind        string  `json:"tipo" gorm:"column:tipo"`
	Description string  `json:"descricao" gorm:"column:descricao;type:text"`
	MonthlyCost float64 `json:"custo_mensal" gorm:"column:custo_mensal"`
	Active      bool    `json:"ativo" gorm:"column:ativo;not null"`
}

func (Channel) TableName() string {
	return "canais"
}

// Financial entry kinds
const (
	EntryRevenue = "receita"
	EntryExpense = "despesa"
)

type FinancialEntry struct {
	TenantRecord
	Description string     `json:"descricao" gorm:"column:descricao;not null"`
	Kind        string     `json:"tipo" gorm:"column:tipo;type:varchar(10);not null"`
	Amount      float64    `json:"valor" gorm:"column:valor;not null"`
	Category    string     `json:"categoria" gorm:"column:categoria"`
	Date        *time.Time `json:"data" gorm:"column:data"`
	Paid        bool       `json:"pago" gorm:"column:pago;default:false"`
}

func (FinancialEntry) TableName() string {
	return "lancamentos_financeiros"
}

type Metric struct {
	TenantRecord
	Name    string  `json:"nome" gorm:"column:nome;not null"`
	Current float64 `json:"valor_atual" gorm:"column:valor_atual"`
	Target  float64 `json:"meta" gorm:"column:meta"`
	Unit    string  `json:"unidade" gorm:"column:unidade"`
	Period  string  `json:"periodo" gorm:"column:periodo"`
}

func (Metric) TableName() string {
	return "metricas"
}

type Benefit struct {
	TenantRecord
	Title       string `json:"titulo" gorm:"column:titulo;not null"`
	Description string `json:"descricao" gorm:"column:descricao;type:text"`
	Feature     string `json:"funcionalidade" gorm:"column:funcionalidade"`
}

func (Benefit) TableName() string {
	return "beneficios"
}

type Feature struct {
	TenantRecord
	Name        string `json:"nome" gorm:"column:nome;not null"`
	Description string `json:"descricao" gorm:"column:descricao;type:text"`
	Priority    string `json:"prioridade" gorm:"column:prioridade"`
	Status      string `json:"status" gorm:"column:status"`
}

func (Feature) TableName() string {
	return "funcionalidades"
}

// FinanceSummary aggregates financial entries
type FinanceSummary struct {
	Revenue  float64 `json:"receitas"`
	Expenses float64 `json:"despesas"`
	Balance  float64 `json:"saldo"`
	Pending  float64 `json:"pendente"`
	Count    int     `json:"quantidade"`
}

// Summarize totals revenue and expenses. Pending is the unpaid balance.
func Summarize(entries []FinancialEntry) FinanceSummary {
	var s FinanceSummary
	for _, e := range entries {
		sign := 0.0
		switch e.Kind {
		case EntryRevenue:
			s.Revenue += e.Amount
			sign = 1
		case EntryExpense:
			s.Expenses += e.Amount
			sign = -1
		default:
			continue
		}
		if !e.Paid {
			s.Pending += sign * e.Amount
		}
		s.Count++
	}
	s.Balance = s.Revenue - s.Expenses
	return s
}
