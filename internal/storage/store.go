package storage

import (
	"context"

	"progsearch/internal/model"
)

// Store defines persistence operations for search runs and their
// discovered programs.
type Store interface {
	Init(ctx context.Context) error
	SaveProgram(ctx context.Context, program model.ProgramRecord) error
	GetProgram(ctx context.Context, id string) (model.ProgramRecord, bool, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationRecord) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationRecord, bool, error)
}
