// Package health runs dependency probes for the health report.
package health

import (
	"context"
	"time"

	"github.com/sandeepkv93/checkin-gateway/internal/store"
)

type CheckResult struct {
	Name       string         `json:"name"`
	Healthy    bool           `json:"healthy"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Details    map[string]any `json:"details,omitempty"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

// StoreChecker pings the shared key-value store.
type StoreChecker struct {
	KV store.KV
}

func (c StoreChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	res := CheckResult{Name: "store", Healthy: true}
	if c.KV == nil {
		res.Healthy = false
		res.Error = "store not configured"
		return res
	}
	res.Details = map[string]any{"backend": c.KV.Backend()}
	if err := c.KV.Ping(ctx); err != nil {
		res.Healthy = false
		res.Error = err.Error()
	}
	res.DurationMS = time.Since(start).Milliseconds()
	return res
}

// ProbeRunner runs every checker under one deadline.
type ProbeRunner struct {
	checkers []Checker
	timeout  time.Duration
}

func NewProbeRunner(timeout time.Duration, checkers ...Checker) *ProbeRunner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ProbeRunner{checkers: checkers, timeout: timeout}
}

// Ready reports true only when every probe passed.
func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	ready := true
	results := make([]CheckResult, 0, len(p.checkers))
	for _, c := range p.checkers {
		res := c.Check(ctx)
		if !res.Healthy {
			ready = false
		}
		results = append(results, res)
	}
	return ready, results
}
