package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// HealthStatus classifies the engine's overall condition.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck probes one engine dependency. A failing critical check marks
// the whole engine unhealthy; a failing non-critical check only degrades it.
type HealthCheck struct {
	Name      string
	CheckFunc func(context.Context) error
	Timeout   time.Duration
	Critical  bool
}

// HealthChecker runs a registered set of health checks on demand.
type HealthChecker struct {
	checks map[string]*HealthCheck
	mu     sync.RWMutex
}

// HealthResponse is the body served on /health.
type HealthResponse struct {
	Status    HealthStatus           `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Uptime    time.Duration          `json:"uptime"`
	Checks    map[string]CheckStatus `json:"checks"`
	System    SystemInfo             `json:"system"`
}

// CheckStatus is the outcome of a single check within a HealthResponse.
type CheckStatus struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked time.Time    `json:"last_checked"`
	Duration    string       `json:"duration,omitempty"`
}

// SystemInfo carries process-level runtime stats.
type SystemInfo struct {
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	MemAlloc      uint64 `json:"mem_alloc_mb"`
	MemSys        uint64 `json:"mem_sys_mb"`
}

var (
	globalChecker  *HealthChecker
	startTime      time.Time
	version        = "0.1.0"
	initHealthOnce sync.Once
)

func init() {
	startTime = time.Now()
}

// InitHealthChecker initializes the process-wide health checker.
func InitHealthChecker() *HealthChecker {
	initHealthOnce.Do(func() {
		globalChecker = &HealthChecker{
			checks: make(map[string]*HealthCheck),
		}
	})
	return globalChecker
}

// GetHealthChecker returns the process-wide health checker, initializing it
// on first use.
func GetHealthChecker() *HealthChecker {
	if globalChecker == nil {
		return InitHealthChecker()
	}
	return globalChecker
}

// RegisterCheck adds or replaces a named check. A zero timeout defaults to
// five seconds.
func (hc *HealthChecker) RegisterCheck(check *HealthCheck) {
	if check.Timeout == 0 {
		check.Timeout = 5 * time.Second
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[check.Name] = check
}

// Check runs every registered check and folds the results into one response.
func (hc *HealthChecker) Check(ctx context.Context) HealthResponse {
	hc.mu.RLock()
	checks := make(map[string]*HealthCheck, len(hc.checks))
	for k, v := range hc.checks {
		checks[k] = v
	}
	hc.mu.RUnlock()

	checkResults := make(map[string]CheckStatus)
	overallStatus := HealthStatusHealthy

	for name, check := range checks {
		status := hc.performCheck(ctx, check)
		checkResults[name] = status

		if status.Status == HealthStatusUnhealthy && check.Critical {
			overallStatus = HealthStatusUnhealthy
		} else if status.Status == HealthStatusDegraded && overallStatus == HealthStatusHealthy {
			overallStatus = HealthStatusDegraded
		}
	}

	return HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Version:   version,
		Uptime:    time.Since(startTime),
		Checks:    checkResults,
		System:    getSystemInfo(),
	}
}

// performCheck runs one check under its own timeout. The check function runs
// in a goroutine so a stuck probe cannot wedge the health endpoint.
func (hc *HealthChecker) performCheck(ctx context.Context, check *HealthCheck) CheckStatus {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- check.CheckFunc(checkCtx)
	}()

	var err error
	select {
	case err = <-errChan:
	case <-checkCtx.Done():
		err = checkCtx.Err()
	}

	status := CheckStatus{
		LastChecked: time.Now(),
		Duration:    time.Since(start).String(),
	}

	if err != nil {
		if check.Critical {
			status.Status = HealthStatusUnhealthy
		} else {
			status.Status = HealthStatusDegraded
		}
		status.Message = err.Error()
	} else {
		status.Status = HealthStatusHealthy
		status.Message = "OK"
	}

	return status
}

// HealthHandler serves the full health report. Degraded still answers 200 so
// a partially failed pipeline keeps serving; only unhealthy returns 503.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checker := GetHealthChecker()
		response := checker.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")

		switch response.Status {
		case HealthStatusHealthy, HealthStatusDegraded:
			w.WriteHeader(http.StatusOK)
		case HealthStatusUnhealthy:
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(response)
	}
}

// LivenessHandler answers 200 whenever the process is up.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessHandler answers 200 only when every check passes. A degraded
// engine is pulled from rotation until its agents recover.
func ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checker := GetHealthChecker()
		response := checker.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")

		if response.Status == HealthStatusHealthy {
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
			})
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status": "not ready",
			})
		}
	}
}

func getSystemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		MemAlloc:      m.Alloc / 1024 / 1024,
		MemSys:        m.Sys / 1024 / 1024,
	}
}

// PingCheck reports healthy as long as the checker itself can run.
func PingCheck() *HealthCheck {
	return &HealthCheck{
		Name: "ping",
		CheckFunc: func(ctx context.Context) error {
			return nil
		},
		Timeout:  1 * time.Second,
		Critical: false,
	}
}

// AgentsCheck reports on the supervised agent fleet. snapshot returns the
// number of running and failed agents; any failed agent degrades the engine
// without taking it fully unhealthy, matching the pipeline's partial-results
// behavior.
func AgentsCheck(snapshot func() (running, failed int)) *HealthCheck {
	return &HealthCheck{
		Name: "agents",
		CheckFunc: func(ctx context.Context) error {
			running, failed := snapshot()
			if running == 0 && failed > 0 {
				return fmt.Errorf("all %d agents failed", failed)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d agents failed", failed, running+failed)
			}
			return nil
		},
		Timeout:  2 * time.Second,
		Critical: false,
	}
}

// CacheCheck probes the market-data cache. Losing the cache slows the engine
// down but fetches still reach the provider, so the check is non-critical.
func CacheCheck(pingFunc func(context.Context) error) *HealthCheck {
	return &HealthCheck{
		Name:      "cache",
		CheckFunc: pingFunc,
		Timeout:   5 * time.Second,
		Critical:  false,
	}
}

// ProviderCheck probes an upstream market-data provider.
func ProviderCheck(name string, checkFunc func(context.Context) error) *HealthCheck {
	return &HealthCheck{
		Name:      name,
		CheckFunc: checkFunc,
		Timeout:   10 * time.Second,
		Critical:  false,
	}
}
