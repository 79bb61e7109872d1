package model

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type NodeRecord struct {
	Kind     string       `json:"kind"`
	Terminal string       `json:"terminal,omitempty"`
	Value    any          `json:"value,omitempty"`
	Function string       `json:"function,omitempty"`
	Children []NodeRecord `json:"children,omitempty"`
}

type ProgramRecord struct {
	VersionedRecord
	ID         string     `json:"id"`
	ReturnType string     `json:"return_type"`
	Size       int        `json:"size"`
	Depth      int        `json:"depth"`
	Rendered   string     `json:"rendered"`
	Root       NodeRecord `json:"root"`
}

type RunRecord struct {
	VersionedRecord
	ID                string  `json:"id"`
	CreatedAtUTC      string  `json:"created_at_utc"`
	Scape             string  `json:"scape"`
	Seed              int64   `json:"seed"`
	PopulationSize    int     `json:"population_size"`
	Generations       int     `json:"generations"`
	TerminationReason string  `json:"termination_reason"`
	FinalBestFitness  float64 `json:"final_best_fitness"`
	BestGeneration    int     `json:"best_generation"`
	BestProgramID     string  `json:"best_program_id"`
}

type GenerationRecord struct {
	Generation         int     `json:"generation"`
	BestFitness        float64 `json:"best_fitness"`
	MeanFitness        float64 `json:"mean_fitness"`
	WorstFitness       float64 `json:"worst_fitness"`
	ValidPercent       float64 `json:"valid_percent"`
	UniquePrograms     int     `json:"unique_programs"`
	OverallBestFitness float64 `json:"overall_best_fitness"`
	BestRendered       string  `json:"best_rendered"`
	ElapsedMS          int64   `json:"elapsed_ms"`
}
