package survey

import (
	"context"
	"errors"
	"math/rand"
	"net/url"
	"sync"
	"time"
)

// Service drives the evaluation flow state machine:
// NotStarted -> InProgress(step in [1,total]) -> Finished.
// Client-side queue context is only a cache; every decision that matters is
// re-checked against the store's RunProgress row.
type Service struct {
	store    Store
	rng      *rand.Rand
	maxItems int
	v        Validator

	mu      sync.Mutex
	tokenMu map[string]*sync.Mutex
}

func NewService(store Store, maxItems, minLetters int) *Service {
	if maxItems <= 0 {
		maxItems = 5
	}
	return &Service{
		store:    store,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		maxItems: maxItems,
		v:        Validator{MinLetters: minLetters},
		tokenMu:  map[string]*sync.Mutex{},
	}
}

// lockToken serializes flow mutations per participant token, closing the
// double-start race on the find-or-create-unfinished progress row.
func (s *Service) lockToken(token string) func() {
	s.mu.Lock()
	m, ok := s.tokenMu[token]
	if !ok {
		m = &sync.Mutex{}
		s.tokenMu[token] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Start samples a fresh queue, creates the run, its per-item sessions and
// the progress row at step 1. Returns ErrEmptyPool when no active documents
// exist; in that case nothing is persisted.
func (s *Service) Start(ctx context.Context, token string) (RunProgress, error) {
	unlock := s.lockToken(token)
	defer unlock()

	docs, err := s.store.ActiveDocs(ctx)
	if err != nil {
		return RunProgress{}, err
	}
	s.mu.Lock() // rng is not goroutine-safe across tokens
	chosen, err := Sample(s.rng, docs, s.maxItems)
	s.mu.Unlock()
	if err != nil {
		return RunProgress{}, err
	}

	ids := make([]int64, 0, len(chosen))
	for _, d := range chosen {
		sess, err := s.store.CreateSession(ctx, d.ID)
		if err != nil {
			return RunProgress{}, err
		}
		ids = append(ids, sess.ID)
	}

	run, err := s.store.CreateRun(ctx, token, len(ids))
	if err != nil {
		return RunProgress{}, err
	}
	if err := s.store.AttachRun(ctx, ids, run.ID); err != nil {
		return RunProgress{}, err
	}
	return s.store.UpsertUnfinishedProgress(ctx, token, run.ID, ids, 1, len(ids))
}

// Doc looks up one instruction document.
func (s *Service) Doc(ctx context.Context, id int64) (InstructionDoc, error) {
	return s.store.GetDoc(ctx, id)
}

// StepView is everything one step needs: the session, its document, the
// active questions and any answers already saved (revisits pre-populate).
type StepView struct {
	Step       int
	TotalSteps int
	Session    ItemSession
	Doc        InstructionDoc
	Questions  []Question
	Answers    map[int64]Answer
	IsLast     bool
}

func (v StepView) IsVideoStep() bool { return v.Doc.Kind == MediaVideo }

// Step loads the view for a 1-based step of the queue. ErrInvalidStep is
// surfaced for steps outside [1,total]; a queue whose sessions no longer
// resolve yields ErrExpiredContext.
func (s *Service) Step(ctx context.Context, q Queue, step int) (StepView, error) {
	if q.Empty() {
		return StepView{}, ErrExpiredContext
	}
	if step < 1 || step > len(q.SessionIDs) {
		return StepView{}, ErrInvalidStep
	}
	sess, err := s.store.GetSession(ctx, q.SessionIDs[step-1])
	if errors.Is(err, ErrNotFound) {
		return StepView{}, ErrExpiredContext
	}
	if err != nil {
		return StepView{}, err
	}
	doc, err := s.store.GetDoc(ctx, sess.DocID)
	if err != nil {
		return StepView{}, err
	}
	questions, err := s.store.ActiveQuestions(ctx)
	if err != nil {
		return StepView{}, err
	}
	answers, err := s.store.AnswersForSession(ctx, sess.ID)
	if err != nil {
		return StepView{}, err
	}
	return StepView{
		Step:       step,
		TotalSteps: len(q.SessionIDs),
		Session:    sess,
		Doc:        doc,
		Questions:  questions,
		Answers:    answers,
		IsLast:     step == len(q.SessionIDs),
	}, nil
}

// SubmitResult reports where the flow goes after a successful submit.
type SubmitResult struct {
	NextStep int
	Finished bool // past the last step: route to finalize
}

// SubmitStep validates the whole batch, and only on success upserts every
// answer and advances the progress cursor. Validation failures persist
// nothing and come back in full, so a corrected retry is safe; so is an
// identical retry, since every write is an upsert.
func (s *Service) SubmitStep(ctx context.Context, token string, q Queue, step int, form url.Values) (SubmitResult, ValidationErrors, error) {
	if q.Empty() {
		return SubmitResult{}, nil, ErrExpiredContext
	}
	if step < 1 || step > len(q.SessionIDs) {
		return SubmitResult{}, nil, ErrInvalidStep
	}
	sess, err := s.store.GetSession(ctx, q.SessionIDs[step-1])
	if errors.Is(err, ErrNotFound) {
		return SubmitResult{}, nil, ErrExpiredContext
	}
	if err != nil {
		return SubmitResult{}, nil, err
	}
	questions, err := s.store.ActiveQuestions(ctx)
	if err != nil {
		return SubmitResult{}, nil, err
	}

	answers, verrs := s.v.ParseSubmission(questions, form)
	if verrs != nil {
		return SubmitResult{}, verrs, nil
	}
	for _, a := range answers {
		a.SessionID = sess.ID
		if err := s.store.UpsertAnswer(ctx, a); err != nil {
			return SubmitResult{}, nil, err
		}
	}

	next := step + 1
	total := len(q.SessionIDs)
	if token != "" {
		unlock := s.lockToken(token)
		cur := next
		if cur > total {
			cur = total
		}
		_, err = s.store.UpsertUnfinishedProgress(ctx, token, sess.RunID, q.SessionIDs, cur, total)
		unlock()
		if err != nil {
			return SubmitResult{}, nil, err
		}
	}
	return SubmitResult{NextStep: next, Finished: next > total}, nil, nil
}

// Summary is the pre-finalize view of the whole queue.
type Summary struct {
	Sessions  []ItemSession
	Docs      map[int64]InstructionDoc
	Questions []Question
}

func (s *Service) Summary(ctx context.Context, q Queue) (Summary, error) {
	if q.Empty() {
		return Summary{}, ErrExpiredContext
	}
	sessions, err := s.store.SessionsByIDs(ctx, q.SessionIDs)
	if err != nil {
		return Summary{}, err
	}
	if len(sessions) == 0 {
		return Summary{}, ErrExpiredContext
	}
	docs := map[int64]InstructionDoc{}
	for _, sess := range sessions {
		if _, ok := docs[sess.DocID]; ok {
			continue
		}
		d, err := s.store.GetDoc(ctx, sess.DocID)
		if err != nil {
			return Summary{}, err
		}
		docs[sess.DocID] = d
	}
	questions, err := s.store.ActiveQuestions(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Sessions: sessions, Docs: docs, Questions: questions}, nil
}

// Finalize stamps one completion time on every session and the run, and
// marks the progress row finished. A second finalize for the same token is
// a no-op returning ErrAlreadyFinished, guarded by the finished flag.
func (s *Service) Finalize(ctx context.Context, token string, q Queue) error {
	if q.Empty() {
		return ErrExpiredContext
	}
	unlock := s.lockToken(token)
	defer unlock()

	if _, err := s.store.UnfinishedProgress(ctx, token); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrAlreadyFinished
		}
		return err
	}
	sessions, err := s.store.SessionsByIDs(ctx, q.SessionIDs)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return ErrExpiredContext
	}

	now := time.Now()
	if err := s.store.FinishSessions(ctx, q.SessionIDs, token, now); err != nil {
		return err
	}
	runID := sessions[0].RunID
	if runID != 0 {
		if err := s.store.FinishRun(ctx, runID, token, len(q.SessionIDs), now); err != nil {
			return err
		}
	}
	return s.store.FinishProgress(ctx, token, runID, now)
}

// Resume rebuilds a queue from the token's most recent unfinished progress
// row alone. Sessions are refetched ordered by id, which reproduces the
// sampled order, and the cursor is clamped into [1, total]. ErrNotFound
// means the caller has to start a new run.
func (s *Service) Resume(ctx context.Context, token string) (Queue, error) {
	prog, err := s.store.UnfinishedProgress(ctx, token)
	if err != nil {
		return Queue{}, err
	}
	sessions, err := s.store.SessionsByIDs(ctx, prog.SessionIDs)
	if err != nil {
		return Queue{}, err
	}
	if len(sessions) == 0 {
		return Queue{}, ErrNotFound
	}
	ids := make([]int64, len(sessions))
	for i, sess := range sessions {
		ids[i] = sess.ID
	}
	step := prog.CurrentStep
	if step < 1 {
		step = 1
	}
	if total := len(ids); step > total {
		step = total
	}
	return Queue{SessionIDs: ids, Step: step}, nil
}

// ResumeStep reports the step an unfinished run would resume at, for the
// entry page's resume affordance. ok is false when there is nothing to
// resume.
func (s *Service) ResumeStep(ctx context.Context, token string) (int, bool, error) {
	prog, err := s.store.UnfinishedProgress(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return prog.CurrentStep, true, nil
}

// PartialSave applies an autosave update to one (session, question) pair,
// merging with whatever is already stored. Returns the saved field names.
func (s *Service) PartialSave(ctx context.Context, sessionID, questionID int64, upd PartialUpdate) ([]string, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetActiveQuestion(ctx, questionID); err != nil {
		return nil, err
	}
	a, err := s.store.GetAnswer(ctx, sessionID, questionID)
	if errors.Is(err, ErrNotFound) {
		a = Answer{SessionID: sessionID, QuestionID: questionID}
	} else if err != nil {
		return nil, err
	}
	if upd.Rating != nil {
		a.Rating = *upd.Rating
	}
	if upd.Reason != nil {
		a.Reason = *upd.Reason
	}
	if upd.Improvement != nil {
		a.Improvement = *upd.Improvement
	}
	if err := s.store.UpsertAnswer(ctx, a); err != nil {
		return nil, err
	}
	return upd.Fields(), nil
}
