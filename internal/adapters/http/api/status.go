package api

import (
	"net/http"

	service "github.com/okian/tempusrecords/internal/app"
)

// StatusProvider reports run progress.
type StatusProvider interface {
	Progress() service.Progress
}

// StatusHandler handles run progress requests.
type StatusHandler struct {
	provider StatusProvider
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(provider StatusProvider) *StatusHandler {
	return &StatusHandler{provider: provider}
}

// HandleStatus handles GET /status requests.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	if h.provider == nil {
		writeError(w, http.StatusServiceUnavailable, "no_run")
		return
	}
	writeJSON(w, http.StatusOK, h.provider.Progress())
}
