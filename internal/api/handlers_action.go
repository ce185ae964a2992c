package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sats-staker/internal/errors"
	"github.com/sats-staker/internal/types"
	"github.com/sats-staker/internal/units"
)

// AmountRequest is the body of stake and unstake requests
type AmountRequest struct {
	Amount string `json:"amount" validate:"required,numeric"` // Display units, e.g. "0.5"
}

// handleStake handles POST /api/stakers/{address}/stake
func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	s.handleAmountAction(w, r, types.ActionStake)
}

// handleUnstake handles POST /api/stakers/{address}/unstake
func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	s.handleAmountAction(w, r, types.ActionUnstake)
}

func (s *Server) handleAmountAction(w http.ResponseWriter, r *http.Request, kind types.ActionKind) {
	var req AmountRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", map[string]interface{}{
			"reason": err.Error(),
		})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		respondServiceError(w, validationError(err))
		return
	}

	amount, err := units.ParseDisplay(req.Amount)
	if err != nil {
		respondServiceError(w, errors.NewInvalidArgumentError("amount", err.Error()))
		return
	}

	s.submit(w, r, kind, amount)
}

// handleClaim handles POST /api/stakers/{address}/claim
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, types.ActionClaim, 0)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, kind types.ActionKind, amount types.Amount) {
	session := s.session(r)

	record, err := s.actions.Submit(r.Context(), session, kind, amount)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	w.Header().Set("Location", "/api/actions/"+record.ID)
	respondJSON(w, http.StatusAccepted, newActionResponse(record))
}

// handleGetAction handles GET /api/actions/{id}
func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	record, err := s.actions.Get(mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newActionResponse(record))
}
