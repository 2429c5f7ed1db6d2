package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/usablelab/instrueval/internal/participant"
	"github.com/usablelab/instrueval/internal/survey"
)

const expiredMsg = "Your evaluation session has expired or is invalid. Please start a new evaluation."

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func stepURL(step int) string { return fmt.Sprintf("/evaluate/%d", step) }

// queueFromRequest resolves the active queue: the client cookie when it
// parses, otherwise a resume-by-token lookup against the progress record.
func queueFromRequest(w http.ResponseWriter, r *http.Request, svc *survey.Service) (survey.Queue, bool) {
	if q, ok := readQueue(r); ok {
		return q, true
	}
	token := participant.TokenFromContext(r.Context())
	q, err := svc.Resume(r.Context(), token)
	if err != nil {
		return survey.Queue{}, false
	}
	writeQueue(w, q)
	return q, true
}

// HomeHandler is the entry page: resume affordance plus any pending flash.
func HomeHandler(svc *survey.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := participant.TokenFromContext(r.Context())
		out := struct {
			ResumeStep *int   `json:"resume_step"`
			Message    string `json:"message,omitempty"`
		}{Message: takeFlash(w, r)}

		step, ok, err := svc.ResumeStep(r.Context(), token)
		if err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		if ok {
			out.ResumeStep = &step
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// StartHandler samples a queue, creates the run and redirects to step 1.
func StartHandler(svc *survey.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := participant.TokenFromContext(r.Context())
		prog, err := svc.Start(r.Context(), token)
		if errors.Is(err, survey.ErrEmptyPool) {
			setFlash(w, "No instruction documents are configured yet.")
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		if err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		writeQueue(w, survey.Queue{SessionIDs: prog.SessionIDs, Step: 1})
		http.Redirect(w, r, stepURL(1), http.StatusSeeOther)
	}
}

// ResumeHandler (GET /start) restores an unfinished run for the token and
// redirects to its current step, or back to the entry page.
func ResumeHandler(svc *survey.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := participant.TokenFromContext(r.Context())
		q, err := svc.Resume(r.Context(), token)
		if err != nil {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		writeQueue(w, q)
		http.Redirect(w, r, stepURL(q.Step), http.StatusFound)
	}
}

type questionJSON struct {
	ID   int64  `json:"id"`
	Key  string `json:"key"`
	Text string `json:"text"`
}

type answerJSON struct {
	Rating  int    `json:"rating"`
	Reason  string `json:"reason"`
	Improve string `json:"improve"`
}

type stepJSON struct {
	Step       int                   `json:"step"`
	TotalSteps int                   `json:"total_steps"`
	SessionID  int64                 `json:"session_id"`
	Doc        survey.InstructionDoc `json:"doc"`
	MediaURL   string                `json:"media_url"`
	Questions  []questionJSON        `json:"questions"`
	Answers    map[int64]answerJSON  `json:"answers"`
	IsLast     bool                  `json:"is_last"`
	IsVideo    bool                  `json:"is_video_step"`
}

func stepPayload(v survey.StepView) stepJSON {
	out := stepJSON{
		Step:       v.Step,
		TotalSteps: v.TotalSteps,
		SessionID:  v.Session.ID,
		Doc:        v.Doc,
		Questions:  make([]questionJSON, 0, len(v.Questions)),
		Answers:    map[int64]answerJSON{},
		IsLast:     v.IsLast,
		IsVideo:    v.IsVideoStep(),
	}
	if v.IsVideoStep() {
		out.MediaURL = "/stream/video/" + v.Doc.Filename()
	} else {
		out.MediaURL = fmt.Sprintf("/doc/%d/inline/", v.Doc.ID)
	}
	for _, q := range v.Questions {
		out.Questions = append(out.Questions, questionJSON{ID: q.ID, Key: q.Key, Text: q.Text})
	}
	for qid, a := range v.Answers {
		out.Answers[qid] = answerJSON{Rating: a.Rating, Reason: a.Reason, Improve: a.Improvement}
	}
	return out
}

func parseStep(r *http.Request) (int, bool) {
	step, err := strconv.Atoi(chi.URLParam(r, "step"))
	return step, err == nil && step > 0
}

// StepHandler renders one step; existing answers pre-populate revisits.
func StepHandler(svc *survey.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		step, ok := parseStep(r)
		if !ok {
			http.NotFound(w, r)
			return
		}
		q, ok := queueFromRequest(w, r, svc)
		if !ok {
			setFlash(w, expiredMsg)
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		view, err := svc.Step(r.Context(), q, step)
		switch {
		case errors.Is(err, survey.ErrInvalidStep) || errors.Is(err, survey.ErrNotFound):
			http.NotFound(w, r)
		case errors.Is(err, survey.ErrExpiredContext):
			clearQueue(w)
			setFlash(w, expiredMsg)
			http.Redirect(w, r, "/", http.StatusFound)
		case err != nil:
			http.Error(w, "server error", http.StatusInternalServerError)
		default:
			writeJSON(w, http.StatusOK, stepPayload(view))
		}
	}
}

// SubmitStepHandler validates and stores one step's answers, then advances.
// Validation failures return every field error at once and persist nothing.
func SubmitStepHandler(svc *survey.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		step, ok := parseStep(r)
		if !ok {
			http.NotFound(w, r)
			return
		}
		q, ok := queueFromRequest(w, r, svc)
		if !ok {
			setFlash(w, expiredMsg)
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		token := participant.TokenFromContext(r.Context())
		res, verrs, err := svc.SubmitStep(r.Context(), token, q, step, r.PostForm)
		switch {
		case errors.Is(err, survey.ErrInvalidStep):
			http.NotFound(w, r)
			return
		case errors.Is(err, survey.ErrExpiredContext):
			clearQueue(w)
			setFlash(w, expiredMsg)
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		case err != nil:
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		if verrs != nil {
			writeJSON(w, http.StatusBadRequest, struct {
				OK     bool                    `json:"ok"`
				Errors survey.ValidationErrors `json:"errors"`
			}{false, verrs})
			return
		}
		if res.Finished {
			writeQueue(w, survey.Queue{SessionIDs: q.SessionIDs, Step: len(q.SessionIDs)})
			http.Redirect(w, r, "/done", http.StatusSeeOther)
			return
		}
		writeQueue(w, survey.Queue{SessionIDs: q.SessionIDs, Step: res.NextStep})
		http.Redirect(w, r, stepURL(res.NextStep), http.StatusSeeOther)
	}
}

// SummaryHandler shows the pre-finalize overview of the queue.
func SummaryHandler(svc *survey.Service) http.HandlerFunc {
	type sessionJSON struct {
		Step      int                   `json:"step"`
		SessionID int64                 `json:"session_id"`
		Doc       survey.InstructionDoc `json:"doc"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		q, ok := queueFromRequest(w, r, svc)
		if !ok {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		sum, err := svc.Summary(r.Context(), q)
		if errors.Is(err, survey.ErrExpiredContext) {
			clearQueue(w)
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		if err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		out := struct {
			Sessions  []sessionJSON  `json:"sessions"`
			Questions []questionJSON `json:"questions"`
		}{}
		for i, sess := range sum.Sessions {
			out.Sessions = append(out.Sessions, sessionJSON{
				Step:      i + 1,
				SessionID: sess.ID,
				Doc:       sum.Docs[sess.DocID],
			})
		}
		for _, qn := range sum.Questions {
			out.Questions = append(out.Questions, questionJSON{ID: qn.ID, Key: qn.Key, Text: qn.Text})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// FinalizeHandler completes the run: stamps completion times, marks the
// progress row finished and clears the client context. A repeated finalize
// is benign and still lands on the thank-you page.
func FinalizeHandler(svc *survey.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, ok := queueFromRequest(w, r, svc)
		if !ok {
			setFlash(w, expiredMsg)
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		token := participant.TokenFromContext(r.Context())
		err := svc.Finalize(r.Context(), token, q)
		switch {
		case errors.Is(err, survey.ErrAlreadyFinished):
			// idempotent from the caller's perspective
		case errors.Is(err, survey.ErrExpiredContext):
			clearQueue(w)
			setFlash(w, expiredMsg)
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		case err != nil:
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		clearQueue(w)
		http.Redirect(w, r, "/thanks", http.StatusSeeOther)
	}
}

func ThanksHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "Thank you for completing the evaluation.",
		})
	}
}
