package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"foldershare/internal/domain"
	"foldershare/internal/httputil"
)

// respondError translates a domain error into an RFC 7807 response.
// Validation detail hints and lock item IDs ride along as extra fields;
// anything that is not an HTTPError is logged and reported as a 500.
func respondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var httpErr domain.HTTPError
	if !errors.As(err, &httpErr) {
		logger.Error("request failed", "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var extras map[string]interface{}
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) && validationErr.Detail != "" {
		extras = map[string]interface{}{"hint": validationErr.Detail}
	}
	var lockErr *domain.LockError
	if errors.As(err, &lockErr) && lockErr.ItemID != "" {
		extras = map[string]interface{}{"item_id": lockErr.ItemID}
	}

	httputil.RespondErrorWithExtras(w, httpErr.StatusCode(), httpErr.Error(), extras)
}
