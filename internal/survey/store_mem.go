package survey

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryStore is a Store for dev runs and tests; no durability. Guarded by
// a single lock, which also makes the answer upsert atomic.
type memoryStore struct {
	mu        sync.RWMutex
	seq       int64
	docs      map[int64]InstructionDoc
	questions map[int64]Question
	runs      map[int64]EvaluationRun
	sessions  map[int64]ItemSession
	answers   map[int64]Answer
	progress  map[int64]RunProgress
}

func NewMemoryStore() Store {
	return &memoryStore{
		docs:      map[int64]InstructionDoc{},
		questions: map[int64]Question{},
		runs:      map[int64]EvaluationRun{},
		sessions:  map[int64]ItemSession{},
		answers:   map[int64]Answer{},
		progress:  map[int64]RunProgress{},
	}
}

func (m *memoryStore) nextID() int64 {
	m.seq++
	return m.seq
}

func (m *memoryStore) ActiveDocs(ctx context.Context) ([]InstructionDoc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []InstructionDoc
	for _, d := range m.docs {
		if d.Active {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) GetDoc(ctx context.Context, id int64) (InstructionDoc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return InstructionDoc{}, ErrNotFound
	}
	return d, nil
}

func (m *memoryStore) UpsertDoc(ctx context.Context, d InstructionDoc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.docs {
		if existing.FilePath == d.FilePath {
			d.ID = id
			m.docs[id] = d
			return nil
		}
	}
	d.ID = m.nextID()
	m.docs[d.ID] = d
	return nil
}

func (m *memoryStore) ActiveQuestions(ctx context.Context) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Question
	for _, q := range m.questions {
		if q.Active {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryStore) GetActiveQuestion(ctx context.Context, id int64) (Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok || !q.Active {
		return Question{}, ErrNotFound
	}
	return q, nil
}

func (m *memoryStore) UpsertQuestion(ctx context.Context, q Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.questions {
		if existing.Key == q.Key {
			q.ID = id
			m.questions[id] = q
			return nil
		}
	}
	q.ID = m.nextID()
	m.questions[q.ID] = q
	return nil
}

func (m *memoryStore) CreateRun(ctx context.Context, token string, totalSteps int) (EvaluationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := EvaluationRun{ID: m.nextID(), UserToken: token, CreatedAt: time.Now(), TotalSteps: totalSteps}
	m.runs[run.ID] = run
	return run, nil
}

func (m *memoryStore) GetRun(ctx context.Context, id int64) (EvaluationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return EvaluationRun{}, ErrNotFound
	}
	return run, nil
}

func (m *memoryStore) FinishRun(ctx context.Context, runID int64, token string, totalSteps int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return ErrNotFound
	}
	run.UserToken = token
	run.FinishedAt = &at
	run.TotalSteps = totalSteps
	m.runs[runID] = run
	return nil
}

func (m *memoryStore) CreateSession(ctx context.Context, docID int64) (ItemSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := ItemSession{ID: m.nextID(), DocID: docID, StartedAt: time.Now()}
	m.sessions[sess.ID] = sess
	return sess, nil
}

func (m *memoryStore) AttachRun(ctx context.Context, sessionIDs []int64, runID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range sessionIDs {
		if sess, ok := m.sessions[id]; ok {
			sess.RunID = runID
			m.sessions[id] = sess
		}
	}
	return nil
}

func (m *memoryStore) GetSession(ctx context.Context, id int64) (ItemSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return ItemSession{}, ErrNotFound
	}
	return sess, nil
}

func (m *memoryStore) SessionsByIDs(ctx context.Context, ids []int64) ([]ItemSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ItemSession
	for _, id := range ids {
		if sess, ok := m.sessions[id]; ok {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) FinishSessions(ctx context.Context, ids []int64, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if sess, ok := m.sessions[id]; ok {
			sess.UserToken = token
			sess.FinishedAt = &at
			m.sessions[id] = sess
		}
	}
	return nil
}

func (m *memoryStore) UpsertAnswer(ctx context.Context, a Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.answers {
		if existing.SessionID == a.SessionID && existing.QuestionID == a.QuestionID {
			a.ID = id
			m.answers[id] = a
			return nil
		}
	}
	a.ID = m.nextID()
	m.answers[a.ID] = a
	return nil
}

func (m *memoryStore) GetAnswer(ctx context.Context, sessionID, questionID int64) (Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.answers {
		if a.SessionID == sessionID && a.QuestionID == questionID {
			return a, nil
		}
	}
	return Answer{}, ErrNotFound
}

func (m *memoryStore) AnswersForSession(ctx context.Context, sessionID int64) (map[int64]Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[int64]Answer{}
	for _, a := range m.answers {
		if a.SessionID == sessionID {
			out[a.QuestionID] = a
		}
	}
	return out, nil
}

func (m *memoryStore) UnfinishedProgress(ctx context.Context, token string) (RunProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *RunProgress
	for id := range m.progress {
		p := m.progress[id]
		if p.UserToken != token || p.Finished {
			continue
		}
		if best == nil || p.UpdatedAt.After(best.UpdatedAt) ||
			(p.UpdatedAt.Equal(best.UpdatedAt) && p.ID > best.ID) {
			best = &p
		}
	}
	if best == nil {
		return RunProgress{}, ErrNotFound
	}
	out := *best
	out.SessionIDs = append([]int64(nil), best.SessionIDs...)
	return out, nil
}

func (m *memoryStore) UpsertUnfinishedProgress(ctx context.Context, token string, runID int64, sessionIDs []int64, currentStep, totalSteps int) (RunProgress, error) {
	existing, err := m.UnfinishedProgress(ctx, token)
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if err == nil {
		p := m.progress[existing.ID]
		if runID != 0 {
			p.RunID = runID
		}
		p.SessionIDs = append([]int64(nil), sessionIDs...)
		p.CurrentStep = currentStep
		p.TotalSteps = totalSteps
		p.UpdatedAt = now
		m.progress[p.ID] = p
		return p, nil
	}
	p := RunProgress{
		ID:          m.nextID(),
		UserToken:   token,
		RunID:       runID,
		SessionIDs:  append([]int64(nil), sessionIDs...),
		CurrentStep: currentStep,
		TotalSteps:  totalSteps,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.progress[p.ID] = p
	return p, nil
}

func (m *memoryStore) FinishProgress(ctx context.Context, token string, runID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.progress {
		if p.UserToken == token && !p.Finished {
			p.Finished = true
			if runID != 0 {
				p.RunID = runID
			}
			p.UpdatedAt = at
			m.progress[id] = p
		}
	}
	return nil
}
