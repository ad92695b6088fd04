package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/callstorm/callstorm/pkg/api"
	"github.com/callstorm/callstorm/pkg/client"
)

const samplePeriod = 500 * time.Millisecond

// Run executes the scenario against a running daemon. It stops the engine
// when the last step's hold expires, then evaluates the invariants.
func Run(ctx context.Context, s Scenario, c *client.Client, log *slog.Logger) (Result, error) {
	if log == nil {
		log = slog.Default()
	}
	if len(s.Steps) == 0 {
		return Result{}, fmt.Errorf("scenario %q has no steps", s.Name)
	}

	res := Result{
		ScenarioName: s.Name,
		Started:      time.Now(),
	}
	log.Info("scenario starting", "name", s.Name, "steps", len(s.Steps))

	if err := c.Start(ctx); err != nil {
		return res, fmt.Errorf("starting engine: %w", err)
	}

	for i, step := range s.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step-%d", i+1)
		}

		var req api.ConfigRequest
		if step.Rate > 0 {
			rate := step.Rate
			req.Rate = &rate
		}
		if step.Limit > 0 {
			limit := step.Limit
			req.Limit = &limit
		}
		if req.Rate != nil || req.Limit != nil {
			if _, err := c.Configure(ctx, req); err != nil {
				return res, fmt.Errorf("configuring %s: %w", name, err)
			}
		}
		log.Info("step entered", "step", name, "rate", step.Rate, "limit", step.Limit, "hold", step.Hold)

		if err := holdAndSample(ctx, c, name, step.Hold, &res); err != nil {
			return res, err
		}
	}

	if err := c.Stop(ctx); err != nil {
		return res, fmt.Errorf("stopping engine: %w", err)
	}
	if s.SettleTime > 0 {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(s.SettleTime):
		}
	}

	st, err := c.Status(ctx)
	if err != nil {
		return res, fmt.Errorf("reading final status: %w", err)
	}
	res.TotalOffered = st.TotalOriginated
	res.FinalState = st.State
	res.Duration = time.Since(res.Started)

	if sum, err := c.Summary(ctx); err == nil {
		res.TotalAnswered = sum.Summary.Answered
	}

	evaluateInvariants(&res, s.Invariants)
	res.Success = true
	for _, inv := range res.Invariants {
		if !inv.Passed {
			res.Success = false
			break
		}
	}
	log.Info("scenario finished", "name", s.Name, "success", res.Success,
		"total_offered", res.TotalOffered, "peak_sessions", res.PeakSessions)
	return res, nil
}

func holdAndSample(ctx context.Context, c *client.Client, step string, hold time.Duration, res *Result) error {
	deadline := time.Now().Add(hold)
	ticker := time.NewTicker(samplePeriod)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			st, err := c.Status(ctx)
			if err != nil {
				return fmt.Errorf("sampling %s: %w", step, err)
			}
			res.Samples = append(res.Samples, Sample{
				Step:            step,
				At:              time.Now(),
				State:           st.State,
				ActiveSessions:  st.ActiveSessions,
				TotalOriginated: st.TotalOriginated,
			})
			if st.ActiveSessions > res.PeakSessions {
				res.PeakSessions = st.ActiveSessions
			}
		}
	}
	return nil
}

func evaluateInvariants(res *Result, invariants []Invariant) {
	for _, inv := range invariants {
		var actual float64
		switch inv.Metric {
		case "total_offered":
			actual = float64(res.TotalOffered)
		case "peak_sessions":
			actual = float64(res.PeakSessions)
		case "answer_rate":
			if res.TotalOffered > 0 {
				actual = float64(res.TotalAnswered) / float64(res.TotalOffered)
			}
		}

		var passed bool
		switch inv.Condition {
		case ">":
			passed = actual > inv.Value
		case ">=":
			passed = actual >= inv.Value
		case "<":
			passed = actual < inv.Value
		case "<=":
			passed = actual <= inv.Value
		case "==":
			passed = math.Abs(actual-inv.Value) < 0.0001
		}

		res.Invariants = append(res.Invariants, InvariantResult{
			Metric:   inv.Metric,
			Expected: fmt.Sprintf("%s %.2f", inv.Condition, inv.Value),
			Actual:   fmt.Sprintf("%.4f", actual),
			Passed:   passed,
		})
	}
}
