package originator

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Plan is the on-disk load plan: engine settings plus the weighted behavior
// list to drive them with.
type Plan struct {
	Rate         float64        `json:"rate"`
	Limit        int            `json:"limit"`
	DurationS    float64        `json:"duration_s"`
	MaxOffered   uint64         `json:"max_offered"`
	PeriodS      float64        `json:"period_s"`
	AutoDuration *bool          `json:"auto_duration,omitempty"`
	Debug        bool           `json:"debug,omitempty"`
	Behaviors    []PlanBehavior `json:"behaviors"`
}

// PlanBehavior names a behavior and its round-robin weight.
type PlanBehavior struct {
	Name   string `json:"name"`
	Weight uint   `json:"weight"`
}

// LoadPlan reads and parses a plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing plan %s: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return &p, nil
}

func (p *Plan) validate() error {
	if p.Rate < 0 {
		return fmt.Errorf("rate must be >= 0, got %v", p.Rate)
	}
	if p.Limit < 0 {
		return fmt.Errorf("limit must be >= 0, got %d", p.Limit)
	}
	if p.DurationS < 0 {
		return fmt.Errorf("duration_s must be >= 0, got %v", p.DurationS)
	}
	if p.PeriodS < 0 {
		return fmt.Errorf("period_s must be >= 0, got %v", p.PeriodS)
	}
	if len(p.Behaviors) == 0 {
		return fmt.Errorf("at least one behavior is required")
	}
	for _, b := range p.Behaviors {
		if b.Name == "" {
			return fmt.Errorf("behavior entries need a name")
		}
	}
	return nil
}

// Settings converts the plan into engine settings, filling unset fields
// with the engine defaults.
func (p *Plan) Settings() Settings {
	s := DefaultSettings()
	if p.Rate > 0 {
		s.Rate = p.Rate
	}
	if p.Limit > 0 {
		s.Limit = p.Limit
	}
	s.Duration = time.Duration(p.DurationS * float64(time.Second))
	s.MaxOffered = p.MaxOffered
	if p.PeriodS > 0 {
		s.Period = time.Duration(p.PeriodS * float64(time.Second))
	}
	if p.AutoDuration != nil {
		s.AutoDuration = *p.AutoDuration
	}
	s.Debug = p.Debug
	return s
}
