package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"doorwatch/internal/types"
)

// healthCheckTimeout is the maximum time allowed for all health probes to complete.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is one subsystem check behind GET /health.
type HealthProbe interface {
	// Name identifies the probe in the response, e.g. "audit".
	Name() string

	// Check returns an error when the subsystem is unhealthy. It should
	// respect the context deadline.
	Check(ctx context.Context) error
}

// auditProbe fails while the most recent audit append failed.
type auditProbe struct {
	source StatusSource
}

// NewAuditProbe reports the audit trail as unhealthy until an append succeeds
// again.
func NewAuditProbe(source StatusSource) HealthProbe {
	return auditProbe{source: source}
}

func (p auditProbe) Name() string { return "audit" }

func (p auditProbe) Check(_ context.Context) error {
	failures, err := p.source.AuditHealth()
	if err != nil {
		return fmt.Errorf("audit trail not writable (%d failed appends): %w", failures, err)
	}
	return nil
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every probe concurrently under a short deadline. It
// returns 200 when all pass and 503 when any fails or times out.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	probes := s.HealthProbes
	if len(probes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	var (
		mu      sync.Mutex
		results = make(map[string]error, len(probes))
		wg      sync.WaitGroup
	)

	for _, probe := range probes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()

			var err error
			func() {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("probe panicked: %v", r)
					}
				}()
				err = p.Check(ctx)
			}()

			mu.Lock()
			results[p.Name()] = err
			mu.Unlock()
		}(probe)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()

	components := make(map[string]componentStatus, len(probes))
	allHealthy := true
	for _, probe := range probes {
		name := probe.Name()
		err, ok := results[name]
		switch {
		case !ok:
			allHealthy = false
			components[name] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		case err != nil:
			allHealthy = false
			components[name] = componentStatus{Status: "unhealthy", Message: err.Error()}
		default:
			components[name] = componentStatus{Status: "healthy"}
		}
	}

	resp := healthResponse{Components: components}
	if allHealthy {
		resp.Status = "healthy"
		JSON(w, r, http.StatusOK, resp)
		return
	}
	resp.Status = "unhealthy"
	if logger := types.LoggerFromContext(r.Context()); logger != nil {
		logger.Warn("health check failed", "components", components)
	}
	JSON(w, r, http.StatusServiceUnavailable, resp)
}
