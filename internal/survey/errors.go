package survey

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrEmptyPool means no active instruction documents exist to sample from.
	ErrEmptyPool = errors.New("no active instruction documents")
	// ErrNotFound covers missing docs, questions, sessions and progress rows.
	ErrNotFound = errors.New("not found")
	// ErrInvalidStep means the step is outside [1, total] for the queue.
	ErrInvalidStep = errors.New("invalid step")
	// ErrExpiredContext means the client context references a queue that no
	// longer resolves; the caller should route back to the entry page.
	ErrExpiredContext = errors.New("evaluation context expired or invalid")
	// ErrAlreadyFinished signals a second finalize; benign for callers.
	ErrAlreadyFinished = errors.New("run already finished")
)

// ValidationErrors collects every per-field failure of one submission so the
// client can show them all at once. Keys follow the form field names
// (rating_<qid>, reason_<qid>, improve_<qid>).
type ValidationErrors map[string]string

func (v ValidationErrors) Add(field, msg string) {
	if _, dup := v[field]; !dup {
		v[field] = msg
	}
}

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fmt.Sprintf("validation failed: %s", strings.Join(fields, ", "))
}
