package survey

import (
	"path"
	"strings"
	"time"
)

// MediaKind classifies an instruction document's payload.
type MediaKind string

const (
	MediaPDF   MediaKind = "pdf"
	MediaVideo MediaKind = "video"
)

var videoExts = map[string]bool{".mp4": true, ".webm": true, ".ogg": true}

// KindForFile infers the media kind from a file name. Anything that is not a
// known video extension is treated as a pdf, matching the upload validator.
func KindForFile(name string) MediaKind {
	if videoExts[strings.ToLower(path.Ext(name))] {
		return MediaVideo
	}
	return MediaPDF
}

// InstructionDoc is one piece of instructional content (pdf or video).
// Rows are owned by the content pipeline; the flow only reads them.
type InstructionDoc struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	FilePath string    `json:"file_path"`
	Kind     MediaKind `json:"kind"`
	Version  string    `json:"version,omitempty"`
	Active   bool      `json:"is_active"`
}

func (d InstructionDoc) Filename() string { return path.Base(d.FilePath) }

// The seven fixed evaluation dimensions, in display order.
const (
	DimSensoryConversion    = "sensory_conversion"
	DimProceduralStructure  = "procedural_structure"
	DimActionSpecificity    = "action_specificity"
	DimVerificationRecovery = "verification_recovery"
	DimReferenceClarity     = "reference_clarity"
	DimPersonalization      = "personalization"
	DimCognitiveLoad        = "cognitive_load"
)

type Question struct {
	ID     int64  `json:"id"`
	Key    string `json:"key"`
	Text   string `json:"text"`
	Order  int    `json:"order"`
	Active bool   `json:"is_active"`
}

// EvaluationRun is one complete evaluation attempt over a fixed queue.
type EvaluationRun struct {
	ID         int64      `json:"id"`
	UserToken  string     `json:"user_token"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	TotalSteps int        `json:"total_steps"`
}

// ItemSession is the evaluation of one document within a run; one per queue
// slot. RunID is zero until the run row exists and gets attached.
type ItemSession struct {
	ID         int64      `json:"id"`
	RunID      int64      `json:"run_id,omitempty"`
	DocID      int64      `json:"doc_id"`
	UserToken  string     `json:"user_token,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Answer holds one rating triple. At most one row exists per
// (session, question); writes are upserts on that pair.
type Answer struct {
	ID          int64  `json:"id"`
	SessionID   int64  `json:"session_id"`
	QuestionID  int64  `json:"question_id"`
	Rating      int    `json:"rating"`
	Reason      string `json:"reason"`
	Improvement string `json:"improve"`
}

// RunProgress is the durable resumption anchor for a participant token. The
// session id list duplicates the run's sessions so a queue can be rebuilt
// without a join. At most one unfinished row per token.
type RunProgress struct {
	ID          int64     `json:"id"`
	UserToken   string    `json:"user_token"`
	RunID       int64     `json:"run_id,omitempty"`
	SessionIDs  []int64   `json:"session_ids"`
	CurrentStep int       `json:"current_step"`
	TotalSteps  int       `json:"total_steps"`
	Finished    bool      `json:"is_finished"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Queue is the client-side cache of an in-flight evaluation: the ordered
// session ids plus the 1-based step cursor. It is never authoritative; the
// RunProgress row is.
type Queue struct {
	SessionIDs []int64 `json:"sids"`
	Step       int     `json:"step"`
}

func (q Queue) Empty() bool { return len(q.SessionIDs) == 0 }
