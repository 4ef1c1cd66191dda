package models

import (
	"sort"
	"time"
)

// Task statuses, in board order
const (
	TaskTodo       = "a_fazer"
	TaskInProgress = "em_andamento"
	TaskDone       = "concluida"
)

// TaskStatuses lists the board columns in display order
var TaskStatuses = []string{TaskTodo, TaskInProgress, TaskDone}

// columnOther collects tasks whose status is not one of TaskStatuses
const columnOther = "outros"

type Task struct {
	TenantRecord
	Title       string     `json:"titulo" gorm:"column:titulo;not null"`
	Description string     `json:"descricao" gorm:"column:descricao;type:text"`
	Status      string     `json:"status" gorm:"column:status;type:varchar(20);default:'a_fazer'"`
	Priority    string     `json:"prioridade" gorm:"column:prioridade"`
	Assignee    string     `json:"responsavel" gorm:"column:responsavel"`
	StartDate   *time.Time `json:"data_inicio" gorm:"column:data_inicio"`
	DueDate     *time.Time `json:"data_fim" gorm:"column:data_fim"`
}

func (Task) TableName() string {
	return "tarefas"
}

// IsValidTaskStatus reports whether status is a board column
func IsValidTaskStatus(status string) bool {
	for _, s := range TaskStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// BoardColumn is one kanban column
type BoardColumn struct {
	Status string `json:"status"`
	Tasks  []Task `json:"tarefas"`
}

// GroupByStatus splits tasks into kanban columns in TaskStatuses order. Tasks
// with an unknown status go to a trailing column that is only present when
// non-empty. Input order is kept within a column.
func GroupByStatus(tasks []Task) []BoardColumn {
	columns := make([]BoardColumn, len(TaskStatuses))
	index := make(map[string]int, len(TaskStatuses))
	for i, s := range TaskStatuses {
		columns[i] = BoardColumn{Status: s, Tasks: []Task{}}
		index[s] = i
	}

	var other []Task
	for _, t := range tasks {
		if i, ok := index[t.Status]; ok {
			columns[i].Tasks = append(columns[i].Tasks, t)
			continue
		}
		other = append(other, t)
	}

	if len(other) > 0 {
		columns = append(columns, BoardColumn{Status: columnOther, Tasks: other})
	}
	return columns
}

// CalendarDay lists the tasks active on one day
type CalendarDay struct {
	Date  string `json:"data"`
	Tasks []Task `json:"tarefas"`
}

// CalendarMonth returns one entry per day of the month. A task occupies every
// day between its start and due dates inclusive; a task with a single date
// occupies only that day and a task without dates is left out.
func CalendarMonth(tasks []Task, year int, month time.Month) []CalendarDay {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	days := make([]CalendarDay, last.Day())
	for i := range days {
		days[i] = CalendarDay{
			Date:  first.AddDate(0, 0, i).Format("2006-01-02"),
			Tasks: []Task{},
		}
	}

	for _, t := range tasks {
		start, end, ok := taskSpan(t)
		if !ok || end.Before(first) || start.After(last) {
			continue
		}
		if start.Before(first) {
			start = first
		}
		if end.After(last) {
			end = last
		}
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			days[d.Day()-1].Tasks = append(days[d.Day()-1].Tasks, t)
		}
	}

	for i := range days {
		sort.SliceStable(days[i].Tasks, func(a, b int) bool {
			return days[i].Tasks[a].ID < days[i].Tasks[b].ID
		})
	}
	return days
}

// taskSpan returns the task's day range truncated to UTC midnight
func taskSpan(t Task) (time.Time, time.Time, bool) {
	switch {
	case t.StartDate == nil && t.DueDate == nil:
		return time.Time{}, time.Time{}, false
	case t.StartDate == nil:
		d := truncateDay(*t.DueDate)
		return d, d, true
	case t.DueDate == nil:
		d := truncateDay(*t.StartDate)
		return d, d, true
	}

	start, end := truncateDay(*t.StartDate), truncateDay(*t.DueDate)
	if end.Before(start) {
		start, end = end, start
	}
	return start, end, true
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
