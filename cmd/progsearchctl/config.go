package main

import (
	"encoding/json"
	"fmt"
	"os"

	searchapi "progsearch/pkg/progsearch"
)

// loadRunRequestFromConfig reads a run config JSON file. Fields are
// optional; absent fields keep the RunRequest zero value so the API
// defaults apply.
func loadRunRequestFromConfig(path string) (searchapi.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return searchapi.RunRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return searchapi.RunRequest{}, err
	}

	var req searchapi.RunRequest
	if v, ok := asString(raw["scape"]); ok {
		req.Scape = v
	}
	if v, ok := asFloat64(raw["target"]); ok {
		req.Target = v
	}
	if v, ok := asInt(raw["sample_count"]); ok {
		req.SampleCount = v
	}
	if v, ok := asInt(raw["population"]); ok {
		req.Population = v
	}
	if v, ok := asInt(raw["max_depth"]); ok {
		req.MaxDepth = v
	}
	if v, ok := asInt(raw["generations"]); ok {
		req.Generations = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}
	if v, ok := asString(raw["selection"]); ok {
		req.Selection = v
	}
	if v, ok := asInt(raw["tournament_size"]); ok {
		req.TournamentSize = v
	}
	if v, ok := asInt(raw["elite_count"]); ok {
		req.EliteCount = v
	}
	if v, ok := asFloat64(raw["crossover_rate"]); ok {
		req.CrossoverRate = v
	}
	if v, ok := asFloat64(raw["fitness_goal"]); ok {
		req.FitnessGoal = &v
	}
	if v, ok := asInt(raw["stagnation_window"]); ok {
		req.StagnationWindow = v
	}
	if v, ok := asInt(raw["restart_after"]); ok {
		req.RestartAfter = v
	}

	return req, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

// overrideFromFlags applies explicitly-set command line flags on top of
// a config-loaded request.
func overrideFromFlags(req *searchapi.RunRequest, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "scape":
			req.Scape = v.(string)
		case "target":
			req.Target = v.(float64)
		case "samples":
			req.SampleCount = v.(int)
		case "pop":
			req.Population = v.(int)
		case "depth":
			req.MaxDepth = v.(int)
		case "gens":
			req.Generations = v.(int)
		case "seed":
			req.Seed = v.(int64)
		case "workers":
			req.Workers = v.(int)
		case "selection":
			req.Selection = v.(string)
		case "tournament":
			req.TournamentSize = v.(int)
		case "elite":
			req.EliteCount = v.(int)
		case "crossover":
			req.CrossoverRate = v.(float64)
		case "fitness-goal":
			goal := v.(float64)
			req.FitnessGoal = &goal
		case "stagnation":
			req.StagnationWindow = v.(int)
		case "restart-after":
			req.RestartAfter = v.(int)
		}
	}
	return nil
}

func loadOrDefaultRunRequest(configPath string) (searchapi.RunRequest, error) {
	if configPath == "" {
		return searchapi.RunRequest{}, nil
	}
	req, err := loadRunRequestFromConfig(configPath)
	if err != nil {
		return searchapi.RunRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}
