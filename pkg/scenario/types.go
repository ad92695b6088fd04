// Package scenario runs staged load profiles against a callstorm daemon:
// each step reconfigures the engine, holds, and samples, and invariants
// are checked against the final counters.
package scenario

import (
	"time"
)

// Scenario is a staged load profile.
type Scenario struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Steps       []Step        `json:"steps"`
	Invariants  []Invariant   `json:"invariants,omitempty"`
	SettleTime  time.Duration `json:"settle_time,omitempty"`
}

// Step reconfigures the engine and holds the load there. Zero-valued
// fields leave the corresponding setting unchanged.
type Step struct {
	Name  string        `json:"name,omitempty"`
	Rate  float64       `json:"rate,omitempty"`
	Limit int           `json:"limit,omitempty"`
	Hold  time.Duration `json:"hold"`
}

// Invariant is a threshold check against the run's final result.
type Invariant struct {
	Metric    string  `json:"metric"`    // total_offered, peak_sessions, answer_rate
	Condition string  `json:"condition"` // >, >=, <, <=, ==
	Value     float64 `json:"value"`
}

// Sample is one status observation taken during a step.
type Sample struct {
	Step            string    `json:"step"`
	At              time.Time `json:"at"`
	State           string    `json:"state"`
	ActiveSessions  int       `json:"active_sessions"`
	TotalOriginated uint64    `json:"total_originated"`
}

// InvariantResult reports one invariant check.
type InvariantResult struct {
	Metric   string `json:"metric"`
	Expected string `json:"expected"` // e.g. "> 100"
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
}

// Result captures a full scenario run.
type Result struct {
	ScenarioName  string            `json:"scenario_name"`
	Started       time.Time         `json:"started"`
	Duration      time.Duration     `json:"duration"`
	TotalOffered  uint64            `json:"total_offered"`
	TotalAnswered int               `json:"total_answered"`
	PeakSessions  int               `json:"peak_sessions"`
	FinalState    string            `json:"final_state"`
	Samples       []Sample          `json:"samples"`
	Invariants    []InvariantResult `json:"invariants"`
	Success       bool              `json:"success"`
}
