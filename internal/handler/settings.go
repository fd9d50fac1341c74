package handler

import (
	"log/slog"
	"net/http"

	"foldershare/internal/config"
	"foldershare/internal/domain"
	"foldershare/internal/httputil"
)

// SettingsHandler exposes the site settings to administrators.
type SettingsHandler struct {
	settings *config.SettingsStore
	logger   *slog.Logger
}

func NewSettingsHandler(settings *config.SettingsStore, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, logger: logger}
}

func (h *SettingsHandler) requireAdmin(r *http.Request) error {
	if !httputil.GetUser(r).Admin {
		return &domain.ForbiddenError{Message: "site settings require administrator access"}
	}
	return nil
}

// Get handles GET /foldershare/settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if err := h.requireAdmin(r); err != nil {
		respondError(w, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, h.settings.Current())
}

// Patch handles PATCH /foldershare/settings. The body is decoded over
// the current settings, so omitted fields keep their values.
func (h *SettingsHandler) Patch(w http.ResponseWriter, r *http.Request) {
	if err := h.requireAdmin(r); err != nil {
		respondError(w, h.logger, err)
		return
	}

	updated := h.settings.Current()
	if err := httputil.ParseJSON(w, r, &updated); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if updated.QueuePollInterval <= 0 {
		respondError(w, h.logger, &domain.ValidationError{
			Summary: "queue_poll_interval must be positive",
		})
		return
	}
	if updated.FileScheme != "filesystem" && updated.FileScheme != "s3" {
		respondError(w, h.logger, &domain.ValidationError{
			Summary: "file_scheme must be filesystem or s3",
		})
		return
	}

	if err := h.settings.Update(updated); err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.logger.Info("site settings updated", "by", httputil.GetUser(r).ID)
	httputil.RespondJSON(w, http.StatusOK, updated)
}
