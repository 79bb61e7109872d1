package storage

import (
	"context"
	"sort"
	"sync"

	"progsearch/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	programs    map[string]model.ProgramRecord
	runs        map[string]model.RunRecord
	runOrder    []string
	history     map[string][]float64
	diagnostics map[string][]model.GenerationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.programs = make(map[string]model.ProgramRecord)
	s.runs = make(map[string]model.RunRecord)
	s.runOrder = nil
	s.history = make(map[string][]float64)
	s.diagnostics = make(map[string][]model.GenerationRecord)
	return nil
}

func (s *MemoryStore) SaveProgram(_ context.Context, program model.ProgramRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.programs[program.ID] = program
	return nil
}

func (s *MemoryStore) GetProgram(_ context.Context, id string) (model.ProgramRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	program, ok := s.programs[id]
	return program, ok, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; !exists {
		s.runOrder = append(s.runOrder, run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

// ListRuns returns runs newest first; equal timestamps fall back to
// insertion order, latest inserted first.
func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runOrder))
	position := make(map[string]int, len(s.runOrder))
	for i, id := range s.runOrder {
		position[id] = i
		runs = append(runs, s.runs[id])
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC == runs[j].CreatedAtUTC {
			return position[runs[i].ID] > position[runs[j].ID]
		}
		return runs[i].CreatedAtUTC > runs[j].CreatedAtUTC
	})
	return runs, nil
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[runID] = append([]float64(nil), history...)
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), history...), true, nil
}

func (s *MemoryStore) SaveGenerationDiagnostics(_ context.Context, runID string, diagnostics []model.GenerationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.GenerationRecord, len(diagnostics))
	copy(copied, diagnostics)
	s.diagnostics[runID] = copied
	return nil
}

func (s *MemoryStore) GetGenerationDiagnostics(_ context.Context, runID string) ([]model.GenerationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	diagnostics, ok := s.diagnostics[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.GenerationRecord, len(diagnostics))
	copy(copied, diagnostics)
	return copied, true, nil
}
