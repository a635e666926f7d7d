package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/edgeflare/pgsynth/pkg/httputil"
	"github.com/edgeflare/pgsynth/pkg/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// ErrForbidden may be wrapped by a Policy to reject a request.
var ErrForbidden = errors.New("forbidden")

type pgDetails struct {
	Code       string `json:"code"`
	Detail     string `json:"detail,omitempty"`
	Hint       string `json:"hint,omitempty"`
	Constraint string `json:"constraint,omitempty"`
}

// pgStatus maps a SQLSTATE to the HTTP status reported to clients.
func pgStatus(code string) int {
	switch {
	case code == "23505", code == "23503", code == "23P01":
		return http.StatusConflict
	case code == "23502", code == "23514", code == "P0001", strings.HasPrefix(code, "22"):
		return http.StatusBadRequest
	case code == "42501":
		return http.StatusForbidden
	case code == "42883", code == "42P01":
		return http.StatusNotFound
	case code == "57014":
		return http.StatusGatewayTimeout
	case code == "53300", strings.HasPrefix(code, "08"):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail writes err as a JSON error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		qe    *QueryError
		ve    *model.ValidationError
		pgErr *pgconn.PgError
	)
	switch {
	case errors.As(err, &qe):
		httputil.Error(w, http.StatusBadRequest, qe.Error())
	case errors.As(err, &ve):
		httputil.ErrorWithDetails(w, http.StatusUnprocessableEntity, ve.Error(), ve.Problems)
	case errors.Is(err, pgx.ErrNoRows):
		httputil.Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, context.DeadlineExceeded):
		httputil.Error(w, http.StatusGatewayTimeout, "statement timed out")
	case errors.As(err, &pgErr):
		status := pgStatus(pgErr.Code)
		if status == http.StatusInternalServerError {
			s.log(r).Error("statement failed", zap.Error(err))
		}
		httputil.ErrorWithDetails(w, status, pgErr.Message, pgDetails{
			Code:       pgErr.Code,
			Detail:     pgErr.Detail,
			Hint:       pgErr.Hint,
			Constraint: pgErr.ConstraintName,
		})
	default:
		s.log(r).Error("request failed", zap.Error(err))
		httputil.Error(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) log(r *http.Request) *zap.Logger {
	if logger, ok := httputil.Logger(r.Context()); ok {
		return logger
	}
	return s.logger
}
