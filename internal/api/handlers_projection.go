package api

import (
	"net/http"
	"strconv"

	"github.com/sats-staker/internal/errors"
	"github.com/sats-staker/internal/projection"
	"github.com/sats-staker/internal/types"
	"github.com/sats-staker/internal/units"
)

// ProjectionQuery is the query of the stateless projection calculator
type ProjectionQuery struct {
	Amount string  `validate:"required,numeric"`
	Rate   float64 `validate:"gte=0,lte=1000"`
	Unit   string  `validate:"required,oneof=day month"`
	Count  int     `validate:"gte=0,lte=3650"`
}

// handleProjectionCalculator handles GET /api/projections?amount=&rate=&unit=&count=
func (s *Server) handleProjectionCalculator(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := ProjectionQuery{
		Amount: q.Get("amount"),
		Unit:   q.Get("unit"),
	}
	if query.Unit == "" {
		query.Unit = string(types.PeriodDay)
	}

	var err error
	if query.Rate, err = parseFloatParam(q.Get("rate"), 0); err != nil {
		respondServiceError(w, errors.NewInvalidArgumentError("rate", "must be a number"))
		return
	}
	if query.Count, err = parseIntParam(q.Get("count"), types.HorizonWeek.Count); err != nil {
		respondServiceError(w, errors.NewInvalidArgumentError("count", "must be an integer"))
		return
	}
	if err := s.validate.Struct(&query); err != nil {
		respondServiceError(w, validationError(err))
		return
	}

	amount, err := units.ParseDisplay(query.Amount)
	if err != nil {
		respondServiceError(w, errors.NewInvalidArgumentError("amount", err.Error()))
		return
	}

	series, err := projection.Project(amount, query.Rate, types.Horizon{
		Unit:  types.PeriodUnit(query.Unit),
		Count: query.Count,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, series)
}

func parseFloatParam(s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseIntParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
