package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sats-staker/internal/errors"
	"github.com/sats-staker/internal/service"
)

// streamEvent is one server-sent event payload
type streamEvent struct {
	Staker *StakerResponse `json:"staker,omitempty"`
	Error  *ErrorResponse  `json:"error,omitempty"`
}

// handleStream handles GET /api/stakers/{address}/stream as server-sent events.
// The subscription ends with the request.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondServiceError(w, errors.NewInternalError("streaming unsupported", nil))
		return
	}

	session := s.session(r)
	sub, err := s.watcher.Watch(r.Context(), session)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	defer sub.Close()

	// Streams outlive the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	updates := sub.Updates()
	for {
		var update service.Update
		select {
		case <-s.closing:
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			update = u
		}

		var ev streamEvent
		name := "snapshot"
		if update.View != nil {
			ev.Staker = newStakerResponse(session.Address, update.View)
		} else {
			name = "error"
			se := serviceErrorOf(update.Err)
			if se == nil {
				continue
			}
			ev.Error = &ErrorResponse{Error: *se}
		}

		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.WithError(err).Error("Failed to encode stream event")
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
			return
		}
		flusher.Flush()
	}
}
