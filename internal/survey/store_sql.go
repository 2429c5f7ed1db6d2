package survey

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLStore implements Store on database/sql, for both the sqlite and
// postgres drivers. Placeholders use the $n form, which both accept.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func unix(t time.Time) int64 { return t.Unix() }

func optTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0)
	return &t
}

func (s *SQLStore) ActiveDocs(ctx context.Context) ([]InstructionDoc, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,title,file_path,kind,version,is_active FROM instruction_docs WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []InstructionDoc
	for rows.Next() {
		var d InstructionDoc
		if err := rows.Scan(&d.ID, &d.Title, &d.FilePath, &d.Kind, &d.Version, &d.Active); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetDoc(ctx context.Context, id int64) (InstructionDoc, error) {
	var d InstructionDoc
	err := s.db.QueryRowContext(ctx,
		`SELECT id,title,file_path,kind,version,is_active FROM instruction_docs WHERE id=$1`, id).
		Scan(&d.ID, &d.Title, &d.FilePath, &d.Kind, &d.Version, &d.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return InstructionDoc{}, ErrNotFound
	}
	return d, err
}

func (s *SQLStore) UpsertDoc(ctx context.Context, d InstructionDoc) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO instruction_docs (title,file_path,kind,version,is_active)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (file_path) DO UPDATE SET
		   title=EXCLUDED.title, kind=EXCLUDED.kind, version=EXCLUDED.version, is_active=EXCLUDED.is_active`,
		d.Title, d.FilePath, string(d.Kind), d.Version, d.Active)
	return err
}

func (s *SQLStore) ActiveQuestions(ctx context.Context) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,key,text,ord,is_active FROM questions WHERE is_active ORDER BY ord, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.Key, &q.Text, &q.Order, &q.Active); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetActiveQuestion(ctx context.Context, id int64) (Question, error) {
	var q Question
	err := s.db.QueryRowContext(ctx,
		`SELECT id,key,text,ord,is_active FROM questions WHERE id=$1 AND is_active`, id).
		Scan(&q.ID, &q.Key, &q.Text, &q.Order, &q.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, ErrNotFound
	}
	return q, err
}

func (s *SQLStore) UpsertQuestion(ctx context.Context, q Question) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO questions (key,text,ord,is_active) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (key) DO UPDATE SET text=EXCLUDED.text, ord=EXCLUDED.ord, is_active=EXCLUDED.is_active`,
		q.Key, q.Text, q.Order, q.Active)
	return err
}

func (s *SQLStore) CreateRun(ctx context.Context, token string, totalSteps int) (EvaluationRun, error) {
	now := time.Now()
	run := EvaluationRun{UserToken: token, CreatedAt: now, TotalSteps: totalSteps}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO evaluation_runs (user_token,created_at,total_steps) VALUES ($1,$2,$3) RETURNING id`,
		token, unix(now), totalSteps).Scan(&run.ID)
	return run, err
}

func (s *SQLStore) GetRun(ctx context.Context, id int64) (EvaluationRun, error) {
	var run EvaluationRun
	var created int64
	var finished sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT id,user_token,created_at,finished_at,total_steps FROM evaluation_runs WHERE id=$1`, id).
		Scan(&run.ID, &run.UserToken, &created, &finished, &run.TotalSteps)
	if errors.Is(err, sql.ErrNoRows) {
		return EvaluationRun{}, ErrNotFound
	}
	if err != nil {
		return EvaluationRun{}, err
	}
	run.CreatedAt = time.Unix(created, 0)
	run.FinishedAt = optTime(finished)
	return run, nil
}

func (s *SQLStore) FinishRun(ctx context.Context, runID int64, token string, totalSteps int, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE evaluation_runs SET user_token=$1, finished_at=$2, total_steps=$3 WHERE id=$4`,
		token, unix(at), totalSteps, runID)
	return err
}

func (s *SQLStore) CreateSession(ctx context.Context, docID int64) (ItemSession, error) {
	now := time.Now()
	sess := ItemSession{DocID: docID, StartedAt: now}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO item_sessions (doc_id,user_token,started_at) VALUES ($1,'',$2) RETURNING id`,
		docID, unix(now)).Scan(&sess.ID)
	return sess, err
}

func placeholders(n, from int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(parts, ",")
}

func idArgs(ids []int64, extra ...any) []any {
	args := append([]any{}, extra...)
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

func (s *SQLStore) AttachRun(ctx context.Context, sessionIDs []int64, runID int64) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	q := fmt.Sprintf(`UPDATE item_sessions SET run_id=$1 WHERE id IN (%s)`, placeholders(len(sessionIDs), 2))
	_, err := s.db.ExecContext(ctx, q, idArgs(sessionIDs, runID)...)
	return err
}

func (s *SQLStore) scanSession(row interface{ Scan(...any) error }) (ItemSession, error) {
	var sess ItemSession
	var runID sql.NullInt64
	var started int64
	var finished sql.NullInt64
	if err := row.Scan(&sess.ID, &runID, &sess.DocID, &sess.UserToken, &started, &finished); err != nil {
		return ItemSession{}, err
	}
	sess.RunID = runID.Int64
	sess.StartedAt = time.Unix(started, 0)
	sess.FinishedAt = optTime(finished)
	return sess, nil
}

func (s *SQLStore) GetSession(ctx context.Context, id int64) (ItemSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,run_id,doc_id,user_token,started_at,finished_at FROM item_sessions WHERE id=$1`, id)
	sess, err := s.scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ItemSession{}, ErrNotFound
	}
	return sess, err
}

func (s *SQLStore) SessionsByIDs(ctx context.Context, ids []int64) ([]ItemSession, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := fmt.Sprintf(
		`SELECT id,run_id,doc_id,user_token,started_at,finished_at FROM item_sessions WHERE id IN (%s) ORDER BY id`,
		placeholders(len(ids), 1))
	rows, err := s.db.QueryContext(ctx, q, idArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ItemSession
	for rows.Next() {
		sess, err := s.scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLStore) FinishSessions(ctx context.Context, ids []int64, token string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	q := fmt.Sprintf(`UPDATE item_sessions SET user_token=$1, finished_at=$2 WHERE id IN (%s)`,
		placeholders(len(ids), 3))
	_, err := s.db.ExecContext(ctx, q, idArgs(ids, token, unix(at))...)
	return err
}

func (s *SQLStore) UpsertAnswer(ctx context.Context, a Answer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO answers (session_id,question_id,rating,reason_text,improvement_text)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (session_id,question_id) DO UPDATE SET
		   rating=EXCLUDED.rating, reason_text=EXCLUDED.reason_text, improvement_text=EXCLUDED.improvement_text`,
		a.SessionID, a.QuestionID, a.Rating, a.Reason, a.Improvement)
	return err
}

func (s *SQLStore) GetAnswer(ctx context.Context, sessionID, questionID int64) (Answer, error) {
	var a Answer
	err := s.db.QueryRowContext(ctx,
		`SELECT id,session_id,question_id,rating,reason_text,improvement_text
		 FROM answers WHERE session_id=$1 AND question_id=$2`, sessionID, questionID).
		Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.Rating, &a.Reason, &a.Improvement)
	if errors.Is(err, sql.ErrNoRows) {
		return Answer{}, ErrNotFound
	}
	return a, err
}

func (s *SQLStore) AnswersForSession(ctx context.Context, sessionID int64) (map[int64]Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,session_id,question_id,rating,reason_text,improvement_text FROM answers WHERE session_id=$1`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64]Answer{}
	for rows.Next() {
		var a Answer
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.Rating, &a.Reason, &a.Improvement); err != nil {
			return nil, err
		}
		out[a.QuestionID] = a
	}
	return out, rows.Err()
}

func (s *SQLStore) scanProgress(row interface{ Scan(...any) error }) (RunProgress, error) {
	var p RunProgress
	var runID sql.NullInt64
	var sidsJSON string
	var created, updated int64
	if err := row.Scan(&p.ID, &p.UserToken, &runID, &sidsJSON, &p.CurrentStep, &p.TotalSteps, &p.Finished, &created, &updated); err != nil {
		return RunProgress{}, err
	}
	p.RunID = runID.Int64
	p.CreatedAt = time.Unix(created, 0)
	p.UpdatedAt = time.Unix(updated, 0)
	if err := json.Unmarshal([]byte(sidsJSON), &p.SessionIDs); err != nil {
		return RunProgress{}, err
	}
	return p, nil
}

func (s *SQLStore) UnfinishedProgress(ctx context.Context, token string) (RunProgress, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,user_token,run_id,session_ids_json,current_step,total_steps,is_finished,created_at,updated_at
		 FROM run_progress WHERE user_token=$1 AND NOT is_finished
		 ORDER BY updated_at DESC, id DESC LIMIT 1`, token)
	p, err := s.scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunProgress{}, ErrNotFound
	}
	return p, err
}

func (s *SQLStore) UpsertUnfinishedProgress(ctx context.Context, token string, runID int64, sessionIDs []int64, currentStep, totalSteps int) (RunProgress, error) {
	sids, err := json.Marshal(sessionIDs)
	if err != nil {
		return RunProgress{}, err
	}
	now := unix(time.Now())
	var run any
	if runID != 0 {
		run = runID
	}

	existing, err := s.UnfinishedProgress(ctx, token)
	switch {
	case err == nil:
		_, err = s.db.ExecContext(ctx,
			`UPDATE run_progress SET run_id=COALESCE($1,run_id), session_ids_json=$2, current_step=$3,
			   total_steps=$4, updated_at=$5 WHERE id=$6`,
			run, string(sids), currentStep, totalSteps, now, existing.ID)
		if err != nil {
			return RunProgress{}, err
		}
	case errors.Is(err, ErrNotFound):
		err = s.db.QueryRowContext(ctx,
			`INSERT INTO run_progress (user_token,run_id,session_ids_json,current_step,total_steps,is_finished,created_at,updated_at)
			 VALUES ($1,$2,$3,$4,$5,FALSE,$6,$6) RETURNING id`,
			token, run, string(sids), currentStep, totalSteps, now).Scan(&existing.ID)
		if err != nil {
			return RunProgress{}, err
		}
	default:
		return RunProgress{}, err
	}
	return s.UnfinishedProgress(ctx, token)
}

func (s *SQLStore) FinishProgress(ctx context.Context, token string, runID int64, at time.Time) error {
	var run any
	if runID != 0 {
		run = runID
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE run_progress SET is_finished=TRUE, run_id=COALESCE($1,run_id), updated_at=$2
		 WHERE user_token=$3 AND NOT is_finished`,
		run, unix(at), token)
	return err
}
