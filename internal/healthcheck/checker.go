// Package healthcheck evaluates readiness of the service dependencies.
package healthcheck

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// StatusOK indicates check passed.
	StatusOK = "ok"
	// StatusError indicates check failed.
	StatusError = "error"
)

const defaultCheckTimeout = 2 * time.Second

// CheckResult is one evaluated check.
type CheckResult struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
	Latency string `json:"latency"`
}

// Checker evaluates one dependency.
type Checker interface {
	ID() string
	Check(ctx context.Context) error
}

type funcChecker struct {
	id string
	fn func(ctx context.Context) error
}

func (c funcChecker) ID() string                      { return c.id }
func (c funcChecker) Check(ctx context.Context) error { return c.fn(ctx) }

// Func adapts fn to a Checker named id.
func Func(id string, fn func(ctx context.Context) error) Checker {
	return funcChecker{id: id, fn: fn}
}

// RunAll evaluates every checker concurrently, each bounded by timeout, and
// reports whether all passed. Results keep the checker order.
func RunAll(ctx context.Context, checkers []Checker, timeout time.Duration) ([]CheckResult, bool) {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	results := make([]CheckResult, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			started := time.Now()
			err := c.Check(checkCtx)
			res := CheckResult{ID: c.ID(), Status: StatusOK, Latency: time.Since(started).String()}
			if err != nil {
				res.Status = StatusError
				res.Detail = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	healthy := true
	for _, r := range results {
		if r.Status != StatusOK {
			healthy = false
		}
	}
	return results, healthy
}
