package treatment

import (
	"encoding/json"
	"time"

	"github.com/emhr/emhr/pkg/civil"
)

const (
	GoalActive       = "active"
	GoalMet          = "met"
	GoalPartiallyMet = "partially_met"
	GoalDiscontinued = "discontinued"
)

var validGoalStatuses = map[string]bool{
	GoalActive: true, GoalMet: true, GoalPartiallyMet: true, GoalDiscontinued: true,
}

// Goal maps to treatment_goals. Objectives is a free-form JSON list kept
// by the treatment plan editor.
type Goal struct {
	ID         int64           `db:"id" json:"id"`
	ClientID   int64           `db:"client_id" json:"client_id"`
	NoteID     *int64          `db:"note_id" json:"note_id,omitempty"`
	GoalText   string          `db:"goal_text" json:"goal_text"`
	Objectives json.RawMessage `db:"objectives" json:"objectives,omitempty"`
	TargetDate *civil.Date     `db:"target_date" json:"target_date,omitempty"`
	Status     string          `db:"status" json:"status"`
	MetAt      *time.Time      `db:"met_at" json:"met_at,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// Intervention is an entry of the shared intervention library.
type Intervention struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Category    *string   `db:"category" json:"category,omitempty"`
	Description *string   `db:"description" json:"description,omitempty"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

type InterventionFilter struct {
	Category   string
	Query      string
	ActiveOnly bool
}
