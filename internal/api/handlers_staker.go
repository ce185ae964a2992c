package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/sats-staker/internal/errors"
	"github.com/sats-staker/internal/projection"
	"github.com/sats-staker/internal/service"
	"github.com/sats-staker/internal/types"
	"github.com/sats-staker/internal/wallet"
)

// session builds the request's session from the path address
func (s *Server) session(r *http.Request) wallet.Session {
	address := strings.TrimSpace(mux.Vars(r)["address"])
	return wallet.NewSession(address, s.wallets(address))
}

// view returns the cached view for the session, refreshing when asked or when none is cached
func (s *Server) view(r *http.Request, session wallet.Session) (*service.StakeView, error) {
	if r.URL.Query().Get("refresh") != "true" {
		if view, ok := s.snapshots.Current(session.Address); ok {
			return view, nil
		}
	}
	view, err := s.snapshots.Refresh(r.Context(), session)
	if view != nil {
		// A stale view is still a view
		return view, nil
	}
	return nil, err
}

// handleGetStaker handles GET /api/stakers/{address}
func (s *Server) handleGetStaker(w http.ResponseWriter, r *http.Request) {
	session := s.session(r)

	view, err := s.view(r, session)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	resp := newStakerResponse(session.Address, view)
	if id, ok := s.actions.Pending(session.Address); ok {
		resp.PendingAction = id
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleGetStakerProjections handles GET /api/stakers/{address}/projections?horizon=week|month|year
func (s *Server) handleGetStakerProjections(w http.ResponseWriter, r *http.Request) {
	session := s.session(r)

	horizons, err := parseHorizons(r.URL.Query()["horizon"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	view, err := s.view(r, session)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	series, err := projection.ProjectSnapshot(view.Snapshot, horizons...)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, &ProjectionsResponse{
		Address: session.Address,
		Stale:   view.Stale,
		Series:  series,
	})
}

// parseHorizons resolves horizon names, accepting repeated or comma-separated values
func parseHorizons(values []string) ([]types.Horizon, error) {
	var horizons []types.Horizon
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			h, ok := types.HorizonByName(name)
			if !ok {
				return nil, errors.NewInvalidArgumentError("horizon", "must be one of week, month, year")
			}
			horizons = append(horizons, h)
		}
	}
	return horizons, nil
}
