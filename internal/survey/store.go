package survey

import (
	"context"
	"time"
)

// Store is the durable backend for the evaluation flow. Implementations must
// make UpsertAnswer atomic on the (session, question) uniqueness constraint
// so concurrent retries never produce duplicate rows.
type Store interface {
	// Content (read-mostly; rows are owned by the seeding/content side).
	ActiveDocs(ctx context.Context) ([]InstructionDoc, error)
	GetDoc(ctx context.Context, id int64) (InstructionDoc, error)
	UpsertDoc(ctx context.Context, d InstructionDoc) error
	ActiveQuestions(ctx context.Context) ([]Question, error)
	GetActiveQuestion(ctx context.Context, id int64) (Question, error)
	UpsertQuestion(ctx context.Context, q Question) error

	// Runs and sessions.
	CreateRun(ctx context.Context, token string, totalSteps int) (EvaluationRun, error)
	GetRun(ctx context.Context, id int64) (EvaluationRun, error)
	FinishRun(ctx context.Context, runID int64, token string, totalSteps int, at time.Time) error
	CreateSession(ctx context.Context, docID int64) (ItemSession, error)
	AttachRun(ctx context.Context, sessionIDs []int64, runID int64) error
	GetSession(ctx context.Context, id int64) (ItemSession, error)
	// SessionsByIDs returns the sessions ordered by id ascending; ids are
	// assigned in creation order, so this reproduces the queue order.
	SessionsByIDs(ctx context.Context, ids []int64) ([]ItemSession, error)
	FinishSessions(ctx context.Context, ids []int64, token string, at time.Time) error

	// Answers.
	UpsertAnswer(ctx context.Context, a Answer) error
	GetAnswer(ctx context.Context, sessionID, questionID int64) (Answer, error)
	AnswersForSession(ctx context.Context, sessionID int64) (map[int64]Answer, error)

	// Progress. UnfinishedProgress returns the most recently updated
	// unfinished row for the token, or ErrNotFound.
	UnfinishedProgress(ctx context.Context, token string) (RunProgress, error)
	// UpsertUnfinishedProgress updates the token's unfinished row or creates
	// one (find-or-create-unfinished semantics; finished rows are kept).
	UpsertUnfinishedProgress(ctx context.Context, token string, runID int64, sessionIDs []int64, currentStep, totalSteps int) (RunProgress, error)
	FinishProgress(ctx context.Context, token string, runID int64, at time.Time) error
}
