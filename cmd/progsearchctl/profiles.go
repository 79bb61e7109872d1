package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	searchapi "progsearch/pkg/progsearch"
)

const defaultProfilesPath = "profiles.yaml"

// Profile is a named run preset loaded from a YAML file. Zero-valued
// fields are left alone when applied, so a profile only pins what it
// names.
type Profile struct {
	Name             string   `yaml:"name" json:"name"`
	Scape            string   `yaml:"scape" json:"scape"`
	Target           float64  `yaml:"target" json:"target"`
	SampleCount      int      `yaml:"sample_count" json:"sample_count"`
	Population       int      `yaml:"population" json:"population"`
	MaxDepth         int      `yaml:"max_depth" json:"max_depth"`
	Generations      int      `yaml:"generations" json:"generations"`
	Selection        string   `yaml:"selection" json:"selection"`
	TournamentSize   int      `yaml:"tournament_size" json:"tournament_size"`
	EliteCount       int      `yaml:"elite_count" json:"elite_count"`
	CrossoverRate    float64  `yaml:"crossover_rate" json:"crossover_rate"`
	FitnessGoal      *float64 `yaml:"fitness_goal" json:"fitness_goal,omitempty"`
	StagnationWindow int      `yaml:"stagnation_window" json:"stagnation_window"`
	RestartAfter     int      `yaml:"restart_after" json:"restart_after"`
}

type profilesFile struct {
	Profiles []Profile `yaml:"profiles"`
}

func loadProfiles(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	var file profilesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	seen := make(map[string]bool, len(file.Profiles))
	for _, p := range file.Profiles {
		if p.Name == "" {
			return nil, fmt.Errorf("load profiles: profile without a name in %s", path)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("load profiles: duplicate profile name %q in %s", p.Name, path)
		}
		seen[p.Name] = true
	}
	return file.Profiles, nil
}

func resolveProfile(path, name string) (Profile, error) {
	profiles, err := loadProfiles(path)
	if err != nil {
		return Profile{}, err
	}
	for _, p := range profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("profile not found: %s", name)
}

func applyProfile(req *searchapi.RunRequest, p Profile) {
	if p.Scape != "" {
		req.Scape = p.Scape
	}
	if p.Target != 0 {
		req.Target = p.Target
	}
	if p.SampleCount != 0 {
		req.SampleCount = p.SampleCount
	}
	if p.Population != 0 {
		req.Population = p.Population
	}
	if p.MaxDepth != 0 {
		req.MaxDepth = p.MaxDepth
	}
	if p.Generations != 0 {
		req.Generations = p.Generations
	}
	if p.Selection != "" {
		req.Selection = p.Selection
	}
	if p.TournamentSize != 0 {
		req.TournamentSize = p.TournamentSize
	}
	if p.EliteCount != 0 {
		req.EliteCount = p.EliteCount
	}
	if p.CrossoverRate != 0 {
		req.CrossoverRate = p.CrossoverRate
	}
	if p.FitnessGoal != nil {
		goal := *p.FitnessGoal
		req.FitnessGoal = &goal
	}
	if p.StagnationWindow != 0 {
		req.StagnationWindow = p.StagnationWindow
	}
	if p.RestartAfter != 0 {
		req.RestartAfter = p.RestartAfter
	}
}
