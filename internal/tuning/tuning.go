// Package tuning loads the engine's numeric knobs from tuning.yaml.
package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	// LivingDex demands one shiny per family member instead of one per family.
	LivingDex bool `yaml:"living_dex"`
	// MetAction is what happens when a location's quota is satisfied:
	// "pause", "manual" or "navigate".
	MetAction string `yaml:"met_action"`

	PruneLearned          bool `yaml:"prune_learned"`
	GroupFishingWithWater bool `yaml:"group_fishing_with_water"`
	AutoCatchBlock        bool `yaml:"auto_catch_block"`

	Nav NavBudgets `yaml:"nav"`
}

// NavBudgets are the navigator's frame-counted retry limits.
type NavBudgets struct {
	DirectMoveAttempts  int `yaml:"direct_move_attempts"`
	WarpCandidates      int `yaml:"warp_candidates"`
	MapChangeWaitFrames int `yaml:"map_change_wait_frames"`
	RefineAttempts      int `yaml:"refine_attempts"`
	RefineTolerance     int `yaml:"refine_tolerance"`
	DialogPresses       int `yaml:"dialog_presses"`
	WarpCycles          int `yaml:"warp_cycles"`
}

// Defaults returns the tuning used when no file is provided.
func Defaults() Tuning {
	return Tuning{
		LivingDex:    false,
		MetAction:    "navigate",
		PruneLearned: true,
		Nav: NavBudgets{
			DirectMoveAttempts:  3,
			WarpCandidates:      4,
			MapChangeWaitFrames: 600,
			RefineAttempts:      5,
			RefineTolerance:     2,
			DialogPresses:       24,
			WarpCycles:          6,
		},
	}
}

// Load reads path on top of the defaults, so a partial file only
// overrides what it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	switch t.MetAction {
	case "pause", "manual", "navigate":
	default:
		return t, fmt.Errorf("tuning.yaml: unknown met_action %q", t.MetAction)
	}
	return t, nil
}
