// Package health reports whether a long-running telegate process can still
// deliver telemetry.
//
// Features:
//   - Liveness probe (is process running)
//   - Readiness probe (is the session started)
//   - Component checks for the settings store and the analytics send queue
//   - JSON health endpoint with per-component detail
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// CheckResult represents the result of a health check.
type CheckResult struct {
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ns"`
	Error       string         `json:"error,omitempty"`
}

// Check is a function that performs a health check.
type Check func(ctx context.Context) CheckResult

// Component represents a health-checkable component.
type Component struct {
	Name     string
	Critical bool // failure makes the overall status unhealthy
	Check    Check
	Timeout  time.Duration
}

// Checker manages health checks.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*Component
	results    map[string]CheckResult
	startTime  time.Time
	ready      bool
}

// NewChecker creates a new Checker.
func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]*Component),
		results:    make(map[string]CheckResult),
		startTime:  time.Now(),
	}
}

// Register registers a health check component.
func (c *Checker) Register(component *Component) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if component.Timeout == 0 {
		component.Timeout = 5 * time.Second
	}
	c.components[component.Name] = component
	c.results[component.Name] = CheckResult{Status: StatusUnknown}
}

// RegisterFunc registers a check function with the default timeout.
func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{Name: name, Critical: critical, Check: check})
}

// SetReady sets the readiness state.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// IsReady returns the readiness state.
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Check runs all registered health checks concurrently.
func (c *Checker) Check(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	components := make([]*Component, 0, len(c.components))
	for _, comp := range c.components {
		components = append(components, comp)
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(components))
	var (
		wg    sync.WaitGroup
		resMu sync.Mutex
	)
	for _, comp := range components {
		wg.Add(1)
		go func(comp *Component) {
			defer wg.Done()
			result := c.run(ctx, comp)

			resMu.Lock()
			results[comp.Name] = result
			resMu.Unlock()

			c.mu.Lock()
			c.results[comp.Name] = result
			c.mu.Unlock()
		}(comp)
	}
	wg.Wait()
	return results
}

func (c *Checker) run(ctx context.Context, comp *Component) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	start := time.Now()
	resultCh := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- CheckResult{
					Status:  StatusUnhealthy,
					Message: "check panicked",
					Error:   fmt.Sprint(r),
				}
			}
		}()
		resultCh <- comp.Check(checkCtx)
	}()

	var result CheckResult
	select {
	case result = <-resultCh:
	case <-checkCtx.Done():
		result = CheckResult{
			Status:  StatusUnhealthy,
			Message: "check timed out",
			Error:   checkCtx.Err().Error(),
		}
	}
	result.LastChecked = start
	result.Duration = time.Since(start)
	return result
}

// OverallStatus aggregates the last results. A failing critical component
// makes the whole process unhealthy; anything else only degrades it.
func (c *Checker) OverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hasUnknown := false
	hasDegraded := false
	for name, result := range c.results {
		comp := c.components[name]
		if comp == nil {
			continue
		}
		switch result.Status {
		case StatusUnhealthy:
			if comp.Critical {
				return StatusUnhealthy
			}
			hasDegraded = true
		case StatusDegraded:
			hasDegraded = true
		case StatusUnknown:
			if comp.Critical {
				hasUnknown = true
			}
		}
	}

	switch {
	case hasUnknown:
		return StatusUnknown
	case hasDegraded:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Response is the body of the health endpoint.
type Response struct {
	Status     Status                 `json:"status"`
	Ready      bool                   `json:"ready"`
	Uptime     string                 `json:"uptime"`
	Components map[string]CheckResult `json:"components,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Report runs every check and returns the aggregated response.
func (c *Checker) Report(ctx context.Context) Response {
	components := c.Check(ctx)

	c.mu.RLock()
	ready := c.ready
	uptime := time.Since(c.startTime)
	c.mu.RUnlock()

	return Response{
		Status:     c.OverallStatus(),
		Ready:      ready,
		Uptime:     uptime.Round(time.Second).String(),
		Components: components,
		Timestamp:  time.Now(),
	}
}

// Handler serves /livez, /readyz and /healthz.
func (c *Checker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "alive", "timestamp": time.Now()})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !c.IsReady() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "timestamp": time.Now()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "timestamp": time.Now()})
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := c.Report(r.Context())
		code := http.StatusOK
		if resp.Status == StatusUnhealthy || resp.Status == StatusUnknown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Names returns the registered component names in order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.components))
	for name := range c.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
