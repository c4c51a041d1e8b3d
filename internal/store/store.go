// Package store persists qualifications, outcomes, graveyard learnings,
// trials, and the promoted scoring standard behind a single interface
// with SQLite and PostgreSQL implementations.
package store

import (
	"context"

	"github.com/sells-group/leadglass/internal/model"
)

// QualificationFilter specifies criteria for listing qualifications.
type QualificationFilter struct {
	Tier   model.Tier `json:"tier,omitempty"`
	Branch string     `json:"branch,omitempty"`
	Limit  int        `json:"limit,omitempty"`
	Offset int        `json:"offset,omitempty"`
}

// Store defines the persistence interface for the lead pipeline.
type Store interface {
	// Qualifications
	SaveQualification(ctx context.Context, q *model.Qualification) error
	ListQualifications(ctx context.Context, filter QualificationFilter) ([]model.Qualification, error)

	// Outcomes
	SaveOutcome(ctx context.Context, o *model.Outcome) error
	ListOutcomes(ctx context.Context, branch string) ([]model.Outcome, error)

	// Graveyard
	SaveNutrients(ctx context.Context, nutrients []model.Nutrient) error
	ListNutrients(ctx context.Context, category model.NutrientCategory) ([]model.Nutrient, error)
	MarkNutrientsApplied(ctx context.Context, leadID string) (int, error)
	SavePatterns(ctx context.Context, patterns []model.FailurePattern) error
	ListPatterns(ctx context.Context) ([]model.FailurePattern, error)

	// Trials
	SaveTrial(ctx context.Context, t *model.Trial) error
	GetTrial(ctx context.Context, trialID string) (*model.Trial, error)
	ListTrials(ctx context.Context) ([]model.Trial, error)
	SaveTrialResult(ctx context.Context, r *model.TrialResult) error

	// Promoted standard. GetStandard returns nil when none has been
	// persisted yet.
	GetStandard(ctx context.Context) (*model.BranchConfig, error)
	SetStandard(ctx context.Context, cfg model.BranchConfig, record *model.StandardRecord) error
	StandardHistory(ctx context.Context) ([]model.StandardRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
