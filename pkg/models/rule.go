package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RuleCategoryPositive = "positive"
	RuleCategoryNegative = "negative"
	RuleCategoryCritical = "critical"
)

// AnalysisRule is an operator-managed keyword rule applied by the analyze
// stage. Keywords is a comma-separated list; matching is case-insensitive
// substring search over the transcript.
type AnalysisRule struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	Category  string    `db:"category"   json:"category"`
	Keywords  string    `db:"keywords"   json:"keywords"`
	IsActive  bool      `db:"is_active"  json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
