package survey

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
)

func seedStore(t *testing.T, docs, questions int) Store {
	t.Helper()
	store := NewMemoryStore()
	ctx := context.Background()
	for i := 1; i <= docs; i++ {
		kind := MediaPDF
		if i%2 == 0 {
			kind = MediaVideo
		}
		err := store.UpsertDoc(ctx, InstructionDoc{
			Title:    fmt.Sprintf("manual %d", i),
			FilePath: fmt.Sprintf("instructions/manual%d.pdf", i),
			Kind:     kind,
			Active:   true,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	for i := 1; i <= questions; i++ {
		err := store.UpsertQuestion(ctx, Question{
			Key: fmt.Sprintf("dim_%d", i), Text: "question", Order: i, Active: true,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func queueOf(p RunProgress) Queue {
	return Queue{SessionIDs: p.SessionIDs, Step: p.CurrentStep}
}

func submitForm(questions []Question, rating int) url.Values {
	form := url.Values{}
	for _, q := range questions {
		form.Set(fmt.Sprintf("rating_%d", q.ID), fmt.Sprint(rating))
		form.Set(fmt.Sprintf("reason_%d", q.ID), "well structured")
		form.Set(fmt.Sprintf("improve_%d", q.ID), "more detail")
	}
	return form
}

func TestStartCreatesRunSessionsProgress(t *testing.T) {
	store := seedStore(t, 8, 3)
	svc := NewService(store, 5, 2)
	ctx := context.Background()

	prog, err := svc.Start(ctx, "tok-1")
	if err != nil {
		t.Fatal(err)
	}
	if prog.CurrentStep != 1 {
		t.Fatalf("current step = %d, want 1", prog.CurrentStep)
	}
	if prog.TotalSteps != 5 || len(prog.SessionIDs) != 5 {
		t.Fatalf("queue size = %d/%d, want 5", len(prog.SessionIDs), prog.TotalSteps)
	}
	if prog.RunID == 0 {
		t.Fatal("progress not linked to a run")
	}
	sessions, err := store.SessionsByIDs(ctx, prog.SessionIDs)
	if err != nil {
		t.Fatal(err)
	}
	for _, sess := range sessions {
		if sess.RunID != prog.RunID {
			t.Fatalf("session %d not attached to run %d", sess.ID, prog.RunID)
		}
	}
}

func TestStartEmptyPoolPersistsNothing(t *testing.T) {
	store := seedStore(t, 0, 3)
	svc := NewService(store, 5, 2)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "tok-1"); !errors.Is(err, ErrEmptyPool) {
		t.Fatalf("want ErrEmptyPool, got %v", err)
	}
	if _, err := store.UnfinishedProgress(ctx, "tok-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("progress row created on failed start: %v", err)
	}
	ms := store.(*memoryStore)
	if len(ms.runs) != 0 || len(ms.sessions) != 0 {
		t.Fatalf("runs/sessions created on failed start: %d/%d", len(ms.runs), len(ms.sessions))
	}
}

func TestDoubleStartKeepsOneUnfinishedProgress(t *testing.T) {
	store := seedStore(t, 6, 3)
	svc := NewService(store, 3, 2)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "tok-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Start(ctx, "tok-1"); err != nil {
		t.Fatal(err)
	}
	ms := store.(*memoryStore)
	unfinished := 0
	for _, p := range ms.progress {
		if p.UserToken == "tok-1" && !p.Finished {
			unfinished++
		}
	}
	if unfinished != 1 {
		t.Fatalf("unfinished progress rows = %d, want 1", unfinished)
	}
}

func TestSubmitStepIdempotentUpsert(t *testing.T) {
	store := seedStore(t, 4, 3)
	svc := NewService(store, 3, 2)
	ctx := context.Background()

	prog, err := svc.Start(ctx, "tok-1")
	if err != nil {
		t.Fatal(err)
	}
	q := queueOf(prog)
	questions, _ := store.ActiveQuestions(ctx)

	if _, verrs, err := svc.SubmitStep(ctx, "tok-1", q, 1, submitForm(questions, 3)); err != nil || verrs != nil {
		t.Fatalf("first submit: err=%v verrs=%v", err, verrs)
	}
	if _, verrs, err := svc.SubmitStep(ctx, "tok-1", q, 1, submitForm(questions, 6)); err != nil || verrs != nil {
		t.Fatalf("second submit: err=%v verrs=%v", err, verrs)
	}

	answers, err := store.AnswersForSession(ctx, q.SessionIDs[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(answers) != len(questions) {
		t.Fatalf("answer rows = %d, want %d", len(answers), len(questions))
	}
	for _, a := range answers {
		if a.Rating != 6 {
			t.Fatalf("second submission did not win: rating %d", a.Rating)
		}
	}
}

func TestSubmitStepValidationPersistsNothing(t *testing.T) {
	store := seedStore(t, 4, 3)
	svc := NewService(store, 3, 2)
	ctx := context.Background()

	prog, _ := svc.Start(ctx, "tok-1")
	q := queueOf(prog)
	questions, _ := store.ActiveQuestions(ctx)

	form := submitForm(questions, 4)
	form.Set(fmt.Sprintf("rating_%d", questions[0].ID), "9")
	form.Set(fmt.Sprintf("reason_%d", questions[1].ID), "12")

	_, verrs, err := svc.SubmitStep(ctx, "tok-1", q, 1, form)
	if err != nil {
		t.Fatal(err)
	}
	if len(verrs) != 2 {
		t.Fatalf("want both failures collected, got %v", verrs)
	}
	answers, _ := store.AnswersForSession(ctx, q.SessionIDs[0])
	if len(answers) != 0 {
		t.Fatalf("answers persisted despite validation failure: %d", len(answers))
	}
	fresh, _ := store.UnfinishedProgress(ctx, "tok-1")
	if fresh.CurrentStep != 1 {
		t.Fatalf("step advanced despite validation failure: %d", fresh.CurrentStep)
	}
}

func TestSubmitPastLastStepRoutesToFinalize(t *testing.T) {
	store := seedStore(t, 3, 2)
	svc := NewService(store, 3, 2)
	ctx := context.Background()

	prog, _ := svc.Start(ctx, "tok-1")
	q := queueOf(prog)
	questions, _ := store.ActiveQuestions(ctx)

	for step := 1; step <= len(q.SessionIDs); step++ {
		res, verrs, err := svc.SubmitStep(ctx, "tok-1", q, step, submitForm(questions, 5))
		if err != nil || verrs != nil {
			t.Fatalf("step %d: err=%v verrs=%v", step, err, verrs)
		}
		wantFinished := step == len(q.SessionIDs)
		if res.Finished != wantFinished {
			t.Fatalf("step %d: finished=%v, want %v", step, res.Finished, wantFinished)
		}
	}
	// the stored cursor never exceeds the total
	fresh, _ := store.UnfinishedProgress(ctx, "tok-1")
	if fresh.CurrentStep != fresh.TotalSteps {
		t.Fatalf("stored step = %d, want clamp at %d", fresh.CurrentStep, fresh.TotalSteps)
	}
}

func TestStepBounds(t *testing.T) {
	store := seedStore(t, 3, 2)
	svc := NewService(store, 3, 2)
	ctx := context.Background()

	prog, _ := svc.Start(ctx, "tok-1")
	q := queueOf(prog)

	for _, step := range []int{0, -1, len(q.SessionIDs) + 1} {
		if _, err := svc.Step(ctx, q, step); !errors.Is(err, ErrInvalidStep) {
			t.Fatalf("step %d: want ErrInvalidStep, got %v", step, err)
		}
	}
	view, err := svc.Step(ctx, q, 1)
	if err != nil {
		t.Fatal(err)
	}
	if view.TotalSteps != 3 || view.Step != 1 || view.IsLast {
		t.Fatalf("bad view: %+v", view)
	}
}

func TestResumeReconstructsQueueOrder(t *testing.T) {
	store := seedStore(t, 6, 2)
	svc := NewService(store, 4, 2)
	ctx := context.Background()

	prog, _ := svc.Start(ctx, "tok-1")
	questions, _ := store.ActiveQuestions(ctx)
	orig := queueOf(prog)
	if _, verrs, err := svc.SubmitStep(ctx, "tok-1", orig, 1, submitForm(questions, 5)); err != nil || verrs != nil {
		t.Fatalf("submit: err=%v verrs=%v", err, verrs)
	}

	// no client context: only the token survives
	q, err := svc.Resume(ctx, "tok-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(q.SessionIDs) != len(orig.SessionIDs) {
		t.Fatalf("queue length changed on resume: %d vs %d", len(q.SessionIDs), len(orig.SessionIDs))
	}
	for i := range q.SessionIDs {
		if q.SessionIDs[i] != orig.SessionIDs[i] {
			t.Fatalf("queue order changed on resume: %v vs %v", q.SessionIDs, orig.SessionIDs)
		}
	}
	if q.Step != 2 {
		t.Fatalf("resume step = %d, want 2", q.Step)
	}
}

func TestResumeClampsStep(t *testing.T) {
	store := seedStore(t, 3, 2)
	svc := NewService(store, 3, 2)
	ctx := context.Background()

	prog, _ := svc.Start(ctx, "tok-1")
	if _, err := store.UpsertUnfinishedProgress(ctx, "tok-1", prog.RunID, prog.SessionIDs, 99, prog.TotalSteps); err != nil {
		t.Fatal(err)
	}
	q, err := svc.Resume(ctx, "tok-1")
	if err != nil {
		t.Fatal(err)
	}
	if q.Step != len(q.SessionIDs) {
		t.Fatalf("step not clamped: %d", q.Step)
	}
}

func TestResumeWithoutProgress(t *testing.T) {
	store := seedStore(t, 3, 2)
	svc := NewService(store, 3, 2)
	if _, err := svc.Resume(context.Background(), "stranger"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	store := seedStore(t, 3, 2)
	svc := NewService(store, 3, 2)
	ctx := context.Background()

	prog, _ := svc.Start(ctx, "tok-1")
	q := queueOf(prog)

	if err := svc.Finalize(ctx, "tok-1", q); err != nil {
		t.Fatal(err)
	}
	run, err := store.GetRun(ctx, prog.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.FinishedAt == nil {
		t.Fatal("run completion time not stamped")
	}
	first := *run.FinishedAt

	sessions, _ := store.SessionsByIDs(ctx, q.SessionIDs)
	for _, sess := range sessions {
		if sess.FinishedAt == nil || !sess.FinishedAt.Equal(first) {
			t.Fatalf("session %d completion not stamped with the run's time", sess.ID)
		}
	}

	if err := svc.Finalize(ctx, "tok-1", q); !errors.Is(err, ErrAlreadyFinished) {
		t.Fatalf("second finalize: want ErrAlreadyFinished, got %v", err)
	}
	run, _ = store.GetRun(ctx, prog.RunID)
	if !run.FinishedAt.Equal(first) {
		t.Fatal("second finalize altered the completion time")
	}
	if _, ok, _ := svc.ResumeStep(ctx, "tok-1"); ok {
		t.Fatal("finished run still offered for resume")
	}
}

func TestPartialSaveMerges(t *testing.T) {
	store := seedStore(t, 3, 2)
	svc := NewService(store, 3, 2)
	ctx := context.Background()

	prog, _ := svc.Start(ctx, "tok-1")
	sessID := prog.SessionIDs[0]
	questions, _ := store.ActiveQuestions(ctx)
	qid := questions[0].ID

	rating := 4
	if _, err := svc.PartialSave(ctx, sessID, qid, PartialUpdate{Rating: &rating}); err != nil {
		t.Fatal(err)
	}
	reason := "typing away"
	saved, err := svc.PartialSave(ctx, sessID, qid, PartialUpdate{Reason: &reason})
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 1 || saved[0] != "reason" {
		t.Fatalf("saved fields = %v", saved)
	}
	a, err := store.GetAnswer(ctx, sessID, qid)
	if err != nil {
		t.Fatal(err)
	}
	if a.Rating != 4 || a.Reason != "typing away" {
		t.Fatalf("merge lost data: %+v", a)
	}
}

func TestPartialSaveUnknownTargets(t *testing.T) {
	store := seedStore(t, 3, 2)
	svc := NewService(store, 3, 2)
	ctx := context.Background()

	prog, _ := svc.Start(ctx, "tok-1")
	rating := 4
	if _, err := svc.PartialSave(ctx, 99999, 1, PartialUpdate{Rating: &rating}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown session: want ErrNotFound, got %v", err)
	}
	if _, err := svc.PartialSave(ctx, prog.SessionIDs[0], 99999, PartialUpdate{Rating: &rating}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown question: want ErrNotFound, got %v", err)
	}
}
