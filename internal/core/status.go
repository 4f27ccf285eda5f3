package core

import (
	"net/http"

	"doorwatch/internal/watchdog"
)

type auditStatus struct {
	Failures  int    `json:"failures"`
	LastError string `json:"last_error,omitempty"`
}

type dispatchStatus struct {
	Pending int `json:"pending"`
}

type statusResponse struct {
	watchdog.Status
	Audit    auditStatus       `json:"audit"`
	Dispatch *dispatchStatus   `json:"dispatch,omitempty"`
	Breakers map[string]string `json:"breakers,omitempty"`
}

// HandleStatus returns the machine snapshot together with audit, dispatch
// queue and breaker state.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: s.Source.Status()}

	failures, err := s.Source.AuditHealth()
	resp.Audit.Failures = failures
	if err != nil {
		resp.Audit.LastError = err.Error()
	}

	if s.Queue != nil {
		resp.Dispatch = &dispatchStatus{Pending: s.Queue.Pending()}
	}

	if len(s.Breakers) > 0 {
		resp.Breakers = make(map[string]string, len(s.Breakers))
		for name, b := range s.Breakers {
			resp.Breakers[name] = b.BreakerState()
		}
	}

	JSON(w, r, http.StatusOK, resp)
}
