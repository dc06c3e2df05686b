// Package letters receives the one-way notification that a triggered letter
// has been produced and distributed, closing out the outcome on the matching
// DONE death-event rows. Letter rendering and distribution live elsewhere;
// only the acknowledgment flows back here.
package letters

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"lifeline/internal/death"
	"lifeline/internal/platform/middleware"
	"lifeline/pkg/domain"
)

// Handler serves the administrative callback endpoint.
type Handler struct {
	store  death.Store
	logger *slog.Logger
}

func NewHandler(store death.Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

type distributedRequest struct {
	PersonIdent string `json:"personIdent"`
	LetterID    string `json:"letterId"`
	Timestamp   string `json:"timestamp"`
}

// Distributed handles POST /v1/letters/distributed. The response carries no
// body beyond the acknowledgment status.
func (h *Handler) Distributed(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("caller", middleware.GetCaller(r.Context()))

	var req distributedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
		return
	}

	person, err := domain.ParsePersonID(req.PersonIdent)
	if err != nil || req.LetterID == "" {
		http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
		return
	}

	at := time.Now()
	if req.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
			at = parsed
		}
	}

	count, err := h.store.SetLetterOutcome(r.Context(), person, req.LetterID, at)
	if err != nil {
		logger.Error("failed to record letter outcome",
			"person", person.Masked(),
			"letter_id", req.LetterID,
			"error", err,
		)
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
		return
	}

	if count == 0 {
		// Nothing to close out. Acknowledged anyway: the callback is
		// one-way and the sender has no use for our bookkeeping.
		logger.Warn("letter callback matched no open rows",
			"person", person.Masked(),
			"letter_id", req.LetterID,
		)
	} else {
		logger.Info("letter outcome recorded",
			"person", person.Masked(),
			"letter_id", req.LetterID,
			"rows", count,
		)
	}
	w.WriteHeader(http.StatusNoContent)
}
