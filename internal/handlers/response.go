package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"

	"callinsight-backend/internal/logger"
	"callinsight-backend/internal/middleware"
	"callinsight-backend/internal/models"
	"callinsight-backend/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func okResp(data interface{}) models.Response {
	return models.Response{OK: true, Data: data}
}

func pagedResp(data interface{}, page, limit, total int) models.Response {
	return models.Response{OK: true, Data: data, Pagination: models.NewPagination(page, limit, total)}
}

func errorResp(code, message string, r *http.Request) models.Response {
	return models.Response{
		OK:        false,
		Error:     message,
		Code:      code,
		RequestID: r.Header.Get(middleware.RequestIDHeader),
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.Response {
	resp := errorResp(code, message, r)
	resp.Fields = fields
	return resp
}

func handleServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	switch e := err.(type) {
	case *services.ValidationError:
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", e.Fields, r))
		return
	case *services.ConflictError:
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", e.Message, r))
		return
	case *services.NotFoundError:
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", e.Message, r))
		return
	case *services.UnauthorizedError:
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", e.Message, r))
		return
	case *services.ForbiddenError:
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", e.Message, r))
		return
	case *services.RateLimitError:
		writeJSON(w, http.StatusTooManyRequests, errorResp("RATE_LIMITED", e.Message, r))
		return
	case *services.UpstreamError:
		logRequestError(log, r, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("UPSTREAM_ERROR", e.Message, r))
		return
	}

	// Constraint violations carry a message that is safe to show.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == "23" {
		writeJSON(w, http.StatusBadRequest, errorResp("CONSTRAINT_VIOLATION", pgErr.Message, r))
		return
	}

	logRequestError(log, r, err)
	writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
}

func logRequestError(log *logger.Logger, r *http.Request, err error) {
	if log == nil {
		return
	}
	log.WithRequest(r).WithField("error", err.Error()).Error("request failed")
}
