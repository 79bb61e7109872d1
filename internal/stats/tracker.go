package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"progsearch/internal/evo"
	"progsearch/internal/model"
)

var diagnosticsHeader = []string{
	"generation",
	"elapsed_ms",
	"best_fitness",
	"mean_fitness",
	"worst_fitness",
	"valid_percent",
	"unique_programs",
	"overall_best_fitness",
	"best_program",
}

// WriteFitnessSeries writes the per-generation best fitness as a
// two-column CSV.
func WriteFitnessSeries(runDir string, bestByGeneration []float64) error {
	file, err := os.Create(filepath.Join(runDir, "fitness_series.csv"))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"generation", "best_fitness"}); err != nil {
		return err
	}
	for i, best := range bestByGeneration {
		if err := writer.Write([]string{
			strconv.Itoa(i),
			strconv.FormatFloat(best, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadFitnessSeries(baseDir, runID string) ([]float64, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, "fitness_series.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("fitness series header must have at least 2 columns")
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("fitness series row must have at least 2 columns")
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

// WriteDiagnosticsCSV writes the full per-generation tracker table.
func WriteDiagnosticsCSV(runDir string, diagnostics []model.GenerationRecord) error {
	file, err := os.Create(filepath.Join(runDir, "generation_diagnostics.csv"))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(diagnosticsHeader); err != nil {
		return err
	}
	for _, rec := range diagnostics {
		if err := writer.Write(diagnosticsRow(rec)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadDiagnosticsCSV(baseDir, runID string) ([]model.GenerationRecord, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, "generation_diagnostics.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.GenerationRecord{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < len(diagnosticsHeader) {
		return nil, false, fmt.Errorf("diagnostics header must have %d columns", len(diagnosticsHeader))
	}

	records := make([]model.GenerationRecord, 0, 128)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		rec, err := parseDiagnosticsRow(row)
		if err != nil {
			return nil, false, err
		}
		records = append(records, rec)
	}
	return records, true, nil
}

func diagnosticsRow(rec model.GenerationRecord) []string {
	return []string{
		strconv.Itoa(rec.Generation),
		strconv.FormatInt(rec.ElapsedMS, 10),
		strconv.FormatFloat(rec.BestFitness, 'f', -1, 64),
		strconv.FormatFloat(rec.MeanFitness, 'f', -1, 64),
		strconv.FormatFloat(rec.WorstFitness, 'f', -1, 64),
		strconv.FormatFloat(rec.ValidPercent, 'f', -1, 64),
		strconv.Itoa(rec.UniquePrograms),
		strconv.FormatFloat(rec.OverallBestFitness, 'f', -1, 64),
		rec.BestRendered,
	}
}

func parseDiagnosticsRow(row []string) (model.GenerationRecord, error) {
	if len(row) < len(diagnosticsHeader) {
		return model.GenerationRecord{}, fmt.Errorf("diagnostics row must have %d columns, got %d", len(diagnosticsHeader), len(row))
	}

	var rec model.GenerationRecord
	var err error
	if rec.Generation, err = strconv.Atoi(row[0]); err != nil {
		return model.GenerationRecord{}, err
	}
	if rec.ElapsedMS, err = strconv.ParseInt(row[1], 10, 64); err != nil {
		return model.GenerationRecord{}, err
	}
	if rec.BestFitness, err = strconv.ParseFloat(row[2], 64); err != nil {
		return model.GenerationRecord{}, err
	}
	if rec.MeanFitness, err = strconv.ParseFloat(row[3], 64); err != nil {
		return model.GenerationRecord{}, err
	}
	if rec.WorstFitness, err = strconv.ParseFloat(row[4], 64); err != nil {
		return model.GenerationRecord{}, err
	}
	if rec.ValidPercent, err = strconv.ParseFloat(row[5], 64); err != nil {
		return model.GenerationRecord{}, err
	}
	if rec.UniquePrograms, err = strconv.Atoi(row[6]); err != nil {
		return model.GenerationRecord{}, err
	}
	if rec.OverallBestFitness, err = strconv.ParseFloat(row[7], 64); err != nil {
		return model.GenerationRecord{}, err
	}
	rec.BestRendered = row[8]
	return rec, nil
}

// GenerationRecordFromStep converts a live search step into its stored
// diagnostics form.
func GenerationRecordFromStep(step evo.GenerationStep) model.GenerationRecord {
	rec := model.GenerationRecord{
		Generation:         step.Generation,
		BestFitness:        step.BestFitness,
		MeanFitness:        step.MeanFitness,
		WorstFitness:       step.WorstFitness,
		ValidPercent:       step.ValidPercent,
		UniquePrograms:     step.UniquePrograms,
		OverallBestFitness: step.OverallBestFitness,
		ElapsedMS:          step.Elapsed.Milliseconds(),
	}
	if step.Best != nil {
		rec.BestRendered = step.Best.Render()
	}
	return rec
}

// CSVSink streams generation diagnostics to a writer as they happen,
// one flushed row per generation, so a crashed run still leaves a
// usable trace on disk.
type CSVSink struct {
	writer *csv.Writer
}

func NewCSVSink(w io.Writer) (*CSVSink, error) {
	writer := csv.NewWriter(w)
	if err := writer.Write(diagnosticsHeader); err != nil {
		return nil, err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return &CSVSink{writer: writer}, nil
}

func (s *CSVSink) RecordGeneration(step evo.GenerationStep) error {
	if err := s.writer.Write(diagnosticsRow(GenerationRecordFromStep(step))); err != nil {
		return err
	}
	s.writer.Flush()
	return s.writer.Error()
}
