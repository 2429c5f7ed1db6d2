package http

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/usablelab/instrueval/internal/survey"
)

const (
	queueCookie = "eval_ctx"
	flashCookie = "flash"
)

// The queue cookie caches the active queue and step cursor client-side.
// It is never trusted as the source of truth: when it is missing or
// unreadable, handlers fall back to resuming from the progress record.
func writeQueue(w http.ResponseWriter, q survey.Queue) {
	buf, err := json.Marshal(q)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     queueCookie,
		Value:    base64.RawURLEncoding.EncodeToString(buf),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func readQueue(r *http.Request) (survey.Queue, bool) {
	c, err := r.Cookie(queueCookie)
	if err != nil || c.Value == "" {
		return survey.Queue{}, false
	}
	buf, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return survey.Queue{}, false
	}
	var q survey.Queue
	if err := json.Unmarshal(buf, &q); err != nil || q.Empty() {
		return survey.Queue{}, false
	}
	return q, true
}

func clearQueue(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: queueCookie, Value: "", Path: "/", MaxAge: -1})
}

// Flash messages are one-shot: set on a redirect, consumed by the next
// GET /.
func setFlash(w http.ResponseWriter, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:  flashCookie,
		Value: url.QueryEscape(msg),
		Path:  "/",
	})
}

func takeFlash(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(flashCookie)
	if err != nil || c.Value == "" {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1})
	msg, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return msg
}
