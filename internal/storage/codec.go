package storage

import (
	"encoding/json"
	"errors"

	"progsearch/internal/model"
)

const (
	CurrentSchemaVersion = model.CurrentSchemaVersion
	CurrentCodecVersion  = model.CurrentCodecVersion
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeProgram(p model.ProgramRecord) ([]byte, error) {
	return json.Marshal(p)
}

func DecodeProgram(data []byte) (model.ProgramRecord, error) {
	var program model.ProgramRecord
	if err := json.Unmarshal(data, &program); err != nil {
		return model.ProgramRecord{}, err
	}
	if err := checkVersion(program.VersionedRecord); err != nil {
		return model.ProgramRecord{}, err
	}
	return program, nil
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeFitnessHistory(history []float64) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeFitnessHistory(data []byte) ([]float64, error) {
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func EncodeGenerationDiagnostics(diagnostics []model.GenerationRecord) ([]byte, error) {
	return json.Marshal(diagnostics)
}

func DecodeGenerationDiagnostics(data []byte) ([]model.GenerationRecord, error) {
	var diagnostics []model.GenerationRecord
	if err := json.Unmarshal(data, &diagnostics); err != nil {
		return nil, err
	}
	return diagnostics, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
