// Package intake implements the adaptive interview engine: a per-session
// question/answer loop driven by an LLM-backed policy with a static
// fallback, a base cap of ten questions, and up to three policy-granted
// extras.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// targetQuestions is the normal interview length.
	targetQuestions = 10
	// extraAllowedMax bounds policy-granted extra questions.
	extraAllowedMax = 3
	// hardCap is the absolute interview length.
	hardCap = targetQuestions + extraAllowedMax
)

// fallbackQuestions is the fixed interview used when the policy is
// unavailable for a session. Exhausting it ends the interview.
var fallbackQuestions = []string{
	"What brings you in today?",
	"How long have you had these symptoms?",
	"Where is the pain located, if any?",
	"Any fever, cough, or shortness of breath?",
	"Any known allergies?",
	"Are you taking any medications or supplements?",
	"Any prior similar episodes?",
	"Any recent travel or exposure to sick contacts?",
	"Any chronic conditions (e.g., diabetes, hypertension)?",
	"Is there anything else the doctor should know right now?",
}

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// PatientAttrs are the directory attributes used to personalize questions.
type PatientAttrs struct {
	Name   string
	Age    int
	Gender string
}

// QA is one asked question with the answer recorded so far (empty if
// the slot is still unanswered).
type QA struct {
	Question string
	Answer   string
}

// Decision is the policy's verdict for one turn.
type Decision struct {
	NextQuestion string
	Done         bool
	NeedsExtra   bool
	Reason       string
}

// Policy chooses the next question from the patient's attributes and
// the interview so far. Any error permanently switches the session to
// the fallback list.
type Policy interface {
	Decide(ctx context.Context, attrs PatientAttrs, history []QA, asked int) (Decision, error)
}

// Directory looks up patient attributes. A missing patient is not an
// error; implementations return zero attrs.
type Directory interface {
	LookupAttributes(ctx context.Context, patientID string) (PatientAttrs, error)
}

// Question is the next-question payload returned to clients.
type Question struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Index int    `json:"index"`
	Total int    `json:"total"`
}

// AnswerResult is the outcome of submitting an answer.
type AnswerResult struct {
	Completed    bool      `json:"completed"`
	NextQuestion *Question `json:"next_question"`
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	PatientID      string            `json:"patient_id"`
	Asked          int               `json:"asked"`
	TargetMax      int               `json:"target_max"`
	ExtrasUsed     int               `json:"extras_used"`
	Questions      []string          `json:"questions"`
	Answers        map[string]string `json:"answers"`
	PolicyDisabled bool              `json:"policy_disabled"`
	CreatedAt      time.Time         `json:"created_at"`
}

// session holds one interview's state. The mutex serializes all
// mutations for the session; different sessions never contend.
type session struct {
	mu             sync.Mutex
	patientID      string
	questions      []string
	answers        map[string]string
	targetMax      int
	extrasUsed     int
	policyDisabled bool
	createdAt      time.Time
}

// Engine owns the in-memory session store. Sessions live for the
// process lifetime; a restart loses all in-flight interviews.
type Engine struct {
	mu       sync.RWMutex
	sessions map[string]*session

	policy    Policy
	directory Directory
	logger    *slog.Logger
}

func NewEngine(policy Policy, directory Directory, logger *slog.Logger) *Engine {
	return &Engine{
		sessions:  make(map[string]*session),
		policy:    policy,
		directory: directory,
		logger:    logger,
	}
}

// StartSession creates a fresh session for the patient and returns its id.
func (e *Engine) StartSession(patientID string) string {
	id := uuid.NewString()
	s := &session{
		patientID: patientID,
		answers:   make(map[string]string),
		targetMax: targetQuestions,
		createdAt: time.Now().UTC(),
	}

	e.mu.Lock()
	e.sessions[id] = s
	e.mu.Unlock()

	e.logger.Info("intake session started", "session_id", id, "patient_id", patientID)
	return id
}

func (e *Engine) lookup(sessionID string) (*session, error) {
	e.mu.RLock()
	s, ok := e.sessions[sessionID]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// NextQuestion advances the interview by one question. It returns
// (nil, nil) when the interview is complete.
func (e *Engine) NextQuestion(ctx context.Context, sessionID string) (*Question, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return e.nextLocked(ctx, sessionID, s), nil
}

// nextLocked implements the per-turn decision. Caller holds s.mu.
func (e *Engine) nextLocked(ctx context.Context, sessionID string, s *session) *Question {
	asked := len(s.questions)

	if asked >= s.targetMax {
		// The first time the base cap is hit with no extras granted,
		// the policy still gets one chance to ask for an extension.
		// Any other at-cap state ends the interview.
		if !(asked >= targetQuestions && s.extrasUsed == 0) {
			return nil
		}
	}

	attrs, err := e.directory.LookupAttributes(ctx, s.patientID)
	if err != nil {
		// A patient without a directory record still gets interviewed.
		e.logger.Warn("patient attribute lookup failed", "session_id", sessionID, "patient_id", s.patientID, "error", err)
		attrs = PatientAttrs{}
	}

	history := make([]QA, 0, asked)
	for i, q := range s.questions {
		history = append(history, QA{Question: q, Answer: s.answers[questionID(i+1)]})
	}

	var text string
	var done, needsExtra bool
	if !s.policyDisabled {
		d, err := e.policy.Decide(ctx, attrs, history, asked)
		if err != nil {
			// Fail once, fall back for the rest of the session.
			s.policyDisabled = true
			e.logger.Warn("question policy failed, switching session to fallback", "session_id", sessionID, "error", err)
		} else {
			text = d.NextQuestion
			done = d.Done
			needsExtra = d.NeedsExtra
		}
	}

	if s.policyDisabled {
		if asked < len(fallbackQuestions) {
			text = fallbackQuestions[asked]
			done = false
		} else {
			done = true
		}
	}

	if done {
		return nil
	}

	if asked >= targetQuestions && needsExtra && s.extrasUsed < extraAllowedMax {
		s.extrasUsed++
		s.targetMax = min(hardCap, targetQuestions+s.extrasUsed)
	}

	// Still at the cap after the extras decision: the policy was
	// consulted but did not extend, so the interview is over.
	if asked >= s.targetMax {
		return nil
	}

	// Policy said "not done" but produced no question; treat as completion.
	if text == "" {
		return nil
	}

	s.questions = append(s.questions, text)
	return &Question{
		ID:    questionID(len(s.questions)),
		Text:  text,
		Index: len(s.questions),
		Total: s.targetMax,
	}
}

// SubmitAnswer records the answer to the most recently asked question
// and advances the interview. On a session with no questions asked yet
// the answer text is deliberately discarded and the call behaves like
// NextQuestion; there is no slot to attach it to.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID, answer string) (AnswerResult, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return AnswerResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.questions); n > 0 {
		// Re-submission overwrites the slot.
		s.answers[questionID(n)] = answer
	}

	next := e.nextLocked(ctx, sessionID, s)
	return AnswerResult{Completed: next == nil, NextQuestion: next}, nil
}

// State returns a snapshot of the session for client-side inspection.
func (e *Engine) State(sessionID string) (*Snapshot, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	questions := make([]string, len(s.questions))
	copy(questions, s.questions)
	answers := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}

	return &Snapshot{
		PatientID:      s.patientID,
		Asked:          len(s.questions),
		TargetMax:      s.targetMax,
		ExtrasUsed:     s.extrasUsed,
		Questions:      questions,
		Answers:        answers,
		PolicyDisabled: s.policyDisabled,
		CreatedAt:      s.createdAt,
	}, nil
}

func questionID(n int) string {
	return fmt.Sprintf("q%d", n)
}
