// Package engine owns the quiz session state: the active question
// sequence, the per-question answer ledger, the navigation cursor, the
// cross-session progress aggregate and the timed exam lifecycle. It
// never renders anything; the host issues commands and re-reads State.
package engine

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quizforge/quizforge/internal/bank"
	"github.com/quizforge/quizforge/internal/progress"
)

// QuestionSource is the engine's view of an opened bank.
type QuestionSource interface {
	Questions(ctx context.Context, f bank.Filters) ([]bank.Question, error)
	Question(ctx context.Context, id int64) (bank.QuestionDetail, error)
}

// ProgressSink is the bank-scoped cross-session progress store.
type ProgressSink interface {
	Save(ctx context.Context, questionID int64, answer string, correct bool) error
	Load(ctx context.Context) (map[int64]progress.Entry, error)
	Reset(ctx context.Context) error
}

// SessionCache is the per-bank key/value surface resumable sessions
// are serialized to. Failures degrade to a fresh session.
type SessionCache interface {
	Get(ctx context.Context, bankID string) ([]byte, error)
	Put(ctx context.Context, bankID string, state []byte) error
	Delete(ctx context.Context, bankID string) error
}

// Session is one bank's quiz session. A single mutex guards all state;
// the exam ticker goroutine is the only background producer and it
// converges with user calls on the idempotent end transition.
type Session struct {
	mu sync.Mutex

	bankID   string
	source   QuestionSource
	progress ProgressSink
	cache    SessionCache

	questions []bank.Question
	answers   map[int64]*Answer
	current   int
	history   map[int64]progress.Entry

	exam *examState

	onChange func(State)

	now       func() time.Time
	tickEvery time.Duration
	log       *zap.Logger
}

type Option func(*Session)

// WithClock replaces the wall clock, for tests that simulate time.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithTickInterval replaces the 1s exam tick period.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) { s.tickEvery = d }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Session) { s.log = log }
}

func New(bankID string, source QuestionSource, sink ProgressSink, cache SessionCache, opts ...Option) *Session {
	s := &Session{
		bankID:    bankID,
		source:    source,
		progress:  sink,
		cache:     cache,
		answers:   map[int64]*Answer{},
		history:   map[int64]progress.Entry{},
		now:       time.Now,
		tickEvery: time.Second,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OnChange registers the change hook. Single subscriber, last wins;
// it fires synchronously after every accepted mutation.
func (s *Session) OnChange(cb func(State)) {
	s.mu.Lock()
	s.onChange = cb
	s.mu.Unlock()
}

// Load installs the active sequence for the given filters. An
// unfiltered, unshuffled load restores the cached session for this
// bank when one exists; anything else starts fresh.
func (s *Session) Load(ctx context.Context, f bank.Filters, shuffle bool) error {
	qs, err := s.source.Questions(ctx, f)
	if err != nil {
		return err
	}
	hist, err := s.progress.Load(ctx)
	if err != nil {
		return err
	}
	if shuffle {
		rand.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
	}

	s.mu.Lock()
	// a running exam must not outlive its sequence
	s.endExamLocked()
	s.exam = nil
	s.questions = qs
	s.history = hist
	s.current = 0
	s.answers = map[int64]*Answer{}
	if !shuffle && f.IsZero() {
		s.restoreCachedLocked(ctx)
	}
	st, cb := s.stateLocked(), s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb(st)
	}
	return nil
}

// SelectOption records a click on an option label. Single-choice types
// replace the selection; multiple toggles membership in click order.
// Submitted records and unknown question ids are left untouched.
func (s *Session) SelectOption(ctx context.Context, questionID int64, label string) {
	s.mu.Lock()
	if a := s.answers[questionID]; a != nil && a.Submitted {
		s.mu.Unlock()
		return
	}
	q := s.findLocked(questionID)
	if q == nil {
		s.mu.Unlock()
		return
	}
	a := s.answers[questionID]
	if a == nil {
		a = &Answer{Selected: []string{}}
		s.answers[questionID] = a
	}
	switch q.Type {
	case bank.TypeSingle, bank.TypeTrueFalse:
		a.Selected = []string{label}
	default: // multiple
		removed := false
		for i, l := range a.Selected {
			if l == label {
				a.Selected = append(a.Selected[:i], a.Selected[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			a.Selected = append(a.Selected, label)
		}
	}
	s.persistCacheLocked(ctx)
	st, cb := s.stateLocked(), s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}

// SubmitAnswer finalizes the current selection against the question's
// options. It is idempotent: after the first success it returns the
// frozen record without touching the progress store again. With no
// selection it returns nil. The record is only marked submitted once
// the progress store has acked the save.
func (s *Session) SubmitAnswer(ctx context.Context, questionID int64, options []bank.Option) (*Answer, error) {
	s.mu.Lock()
	a := s.answers[questionID]
	if a != nil && a.Submitted {
		res := a.clone()
		s.mu.Unlock()
		return res, nil
	}
	if a == nil || len(a.Selected) == 0 {
		s.mu.Unlock()
		return nil, nil
	}

	isCorrect := equalLabelSets(a.Selected, correctLabels(options))
	if err := s.progress.Save(ctx, questionID, strings.Join(a.Selected, ","), isCorrect); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	a.Submitted = true
	a.Correct = isCorrect
	if hist, err := s.progress.Load(ctx); err == nil {
		s.history = hist
	} else {
		s.log.Warn("progress refresh failed", zap.Error(err))
	}
	s.persistCacheLocked(ctx)
	res := a.clone()
	st, cb := s.stateLocked(), s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb(st)
	}
	return res, nil
}

func (s *Session) GoNext(ctx context.Context) {
	s.mu.Lock()
	if s.current >= len(s.questions)-1 {
		s.mu.Unlock()
		return
	}
	s.current++
	s.afterMoveLocked(ctx)
}

// GoPrev is additionally rejected while an exam is running: exam
// navigation is forward-only.
func (s *Session) GoPrev(ctx context.Context) {
	s.mu.Lock()
	if s.current <= 0 || (s.exam != nil && s.exam.active) {
		s.mu.Unlock()
		return
	}
	s.current--
	s.afterMoveLocked(ctx)
}

func (s *Session) GoTo(ctx context.Context, index int) {
	s.mu.Lock()
	if index < 0 || index >= len(s.questions) {
		s.mu.Unlock()
		return
	}
	s.current = index
	s.afterMoveLocked(ctx)
}

// afterMoveLocked persists the cache, snapshots and notifies. It
// unlocks the session.
func (s *Session) afterMoveLocked(ctx context.Context) {
	s.persistCacheLocked(ctx)
	st, cb := s.stateLocked(), s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}

// CurrentDetail fetches the cursor question with its options.
func (s *Session) CurrentDetail(ctx context.Context) (bank.QuestionDetail, error) {
	s.mu.Lock()
	if s.current >= len(s.questions) {
		s.mu.Unlock()
		return bank.QuestionDetail{}, bank.ErrQuestionNotFound
	}
	id := s.questions[s.current].ID
	s.mu.Unlock()
	return s.source.Question(ctx, id)
}

// ResetProgress wipes the cross-session aggregate and the cached
// session for this bank and starts the ledger over.
func (s *Session) ResetProgress(ctx context.Context) error {
	if err := s.progress.Reset(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	if err := s.cache.Delete(ctx, s.bankID); err != nil {
		s.log.Warn("session cache delete failed", zap.Error(err))
	}
	s.history = map[int64]progress.Entry{}
	s.answers = map[int64]*Answer{}
	s.current = 0
	st, cb := s.stateLocked(), s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb(st)
	}
	return nil
}

// Reset drops all session state, for closing a bank. Any running exam
// timer is cancelled.
func (s *Session) Reset() {
	s.mu.Lock()
	s.endExamLocked()
	s.exam = nil
	s.questions = nil
	s.answers = map[int64]*Answer{}
	s.history = map[int64]progress.Entry{}
	s.current = 0
	st, cb := s.stateLocked(), s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}

func (s *Session) findLocked(questionID int64) *bank.Question {
	for i := range s.questions {
		if s.questions[i].ID == questionID {
			return &s.questions[i]
		}
	}
	return nil
}

type cachedSession struct {
	Answers      map[int64]*Answer `json:"answers"`
	CurrentIndex int               `json:"current_index"`
}

// persistCacheLocked serializes {answers, cursor} for resume. Exam
// state is ephemeral and never cached; write failures are swallowed so
// a full cache store only costs the resume, never the session.
func (s *Session) persistCacheLocked(ctx context.Context) {
	if s.exam != nil && s.exam.active {
		return
	}
	data, err := json.Marshal(cachedSession{Answers: s.answers, CurrentIndex: s.current})
	if err != nil {
		return
	}
	if err := s.cache.Put(ctx, s.bankID, data); err != nil {
		s.log.Debug("session cache write failed", zap.Error(err))
	}
}

func (s *Session) restoreCachedLocked(ctx context.Context) {
	data, err := s.cache.Get(ctx, s.bankID)
	if err != nil {
		return
	}
	var cached cachedSession
	if err := json.Unmarshal(data, &cached); err != nil {
		return
	}
	inSeq := make(map[int64]bool, len(s.questions))
	for _, q := range s.questions {
		inSeq[q.ID] = true
	}
	for qid, a := range cached.Answers {
		if a != nil && inSeq[qid] {
			s.answers[qid] = a
		}
	}
	s.current = cached.CurrentIndex
	if s.current >= len(s.questions) {
		s.current = len(s.questions) - 1
	}
	if s.current < 0 {
		s.current = 0
	}
}
