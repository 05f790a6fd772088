package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/debemdeboas/stand-admin/internal/config"
	"github.com/debemdeboas/stand-admin/internal/editor"
	"github.com/debemdeboas/stand-admin/internal/notify"
	"github.com/debemdeboas/stand-admin/internal/repository"
	"github.com/rs/zerolog/hlog"
)

type errorResponse struct {
	Error         string                `json:"error"`
	Notifications []notify.Notification `json:"notifications"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.Header().Set(config.HCacheControl, "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		adminLogger.Error().Err(err).Msg("Error writing response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error, notes []notify.Notification) {
	status := StatusFor(err)
	ev := hlog.FromRequest(r).Warn()
	if status >= http.StatusInternalServerError {
		ev = hlog.FromRequest(r).Error()
	}
	ev.Err(err).Int("status", status).Msg("Request failed")

	if notes == nil {
		notes = []notify.Notification{}
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Notifications: notes})
}

// StatusFor maps editing and repository errors to HTTP status codes.
func StatusFor(err error) int {
	var (
		validation *editor.ValidationError
		upload     *editor.UploadError
		persist    *editor.PersistError
	)
	// Commit failures win over whatever they wrap.
	switch {
	case errors.As(err, &upload), errors.As(err, &persist):
		return http.StatusBadGateway
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, errUnknownKind):
		return http.StatusNotFound
	case errors.Is(err, editor.ErrCommitInProgress):
		return http.StatusConflict
	case errors.Is(err, editor.ErrTornDown):
		return http.StatusGone
	}
	return http.StatusInternalServerError
}
