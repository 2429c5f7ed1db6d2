package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/usablelab/instrueval/internal/survey"
)

type saveResponse struct {
	OK    bool     `json:"ok"`
	Saved []string `json:"saved,omitempty"`
	Error string   `json:"error,omitempty"`
}

// PartialSaveHandler is the autosave endpoint: one field update for one
// (session, question) pair. It rejects malformed payloads and out-of-range
// ratings but skips the full-submission text rules.
func PartialSaveHandler(svc *survey.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err1 := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
		questionID, err2 := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
		if err1 != nil || err2 != nil {
			http.NotFound(w, r)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, saveResponse{Error: survey.PartialBadJSON})
			return
		}
		upd, code := survey.ParsePartial(body)
		if code != "" {
			writeJSON(w, http.StatusBadRequest, saveResponse{Error: code})
			return
		}
		saved, err := svc.PartialSave(r.Context(), sessionID, questionID, upd)
		if errors.Is(err, survey.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, saveResponse{OK: true, Saved: saved})
	}
}
