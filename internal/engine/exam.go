package engine

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/quizforge/quizforge/internal/bank"
)

// ErrNoQuestions reports an exam start that cannot be satisfied from
// the bank. No exam session is created.
var ErrNoQuestions = errors.New("not enough questions for exam")

// ExamResult is a pure read over the current or last exam.
type ExamResult struct {
	Total            int  `json:"total"`
	Correct          int  `json:"correct"`
	Score            int  `json:"score"` // 0..100
	Passed           bool `json:"passed"`
	ElapsedSeconds   int  `json:"elapsed_seconds"`
	TimeLimitSeconds int  `json:"time_limit_seconds"`
}

const passScore = 60

type examState struct {
	active        bool
	timeLimit     time.Duration // 0 = untimed
	startedAt     time.Time
	endedAt       time.Time
	questionCount int

	stop    chan struct{} // nil when untimed
	stopped bool
}

// StartExam installs a shuffled fixed-size subset as the active
// sequence and starts the countdown. It fails without any state change
// when fewer than questionCount questions match the filters. With
// timeMinutes = 0 the exam is untimed. onTick is invoked once per tick
// with the remaining and total time; when the clock runs out the exam
// ends itself and onTimeUp fires exactly once.
func (s *Session) StartExam(ctx context.Context, f bank.Filters, timeMinutes, questionCount int,
	onTick func(remaining, limit time.Duration), onTimeUp func()) error {

	qs, err := s.source.Questions(ctx, f)
	if err != nil {
		return err
	}
	if len(qs) == 0 || questionCount <= 0 || len(qs) < questionCount {
		return ErrNoQuestions
	}
	rand.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
	qs = qs[:questionCount]

	s.mu.Lock()
	s.endExamLocked() // a previous session's timer must never outlive it
	ex := &examState{
		active:        true,
		timeLimit:     time.Duration(timeMinutes) * time.Minute,
		startedAt:     s.now(),
		questionCount: len(qs),
	}
	s.exam = ex
	s.questions = qs
	s.current = 0
	s.answers = map[int64]*Answer{}
	if timeMinutes > 0 {
		ex.stop = make(chan struct{})
		go s.runExamTimer(ex, onTick, onTimeUp)
	}
	st, cb := s.stateLocked(), s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb(st)
	}
	return nil
}

// EndExam is idempotent and always leaves no timer behind. User
// submission and the expiry tick race to this same transition; the
// first one wins and the other is a no-op.
func (s *Session) EndExam() {
	s.mu.Lock()
	if s.exam == nil || !s.exam.active {
		s.mu.Unlock()
		return
	}
	s.endExamLocked()
	st, cb := s.stateLocked(), s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}

func (s *Session) endExamLocked() {
	ex := s.exam
	if ex == nil || !ex.active {
		return
	}
	ex.active = false
	ex.endedAt = s.now()
	if ex.stop != nil && !ex.stopped {
		close(ex.stop)
		ex.stopped = true
	}
}

// ExamResult reports the score of the running or last exam. The second
// return is false when no exam has been started.
func (s *Session) ExamResult() (ExamResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex := s.exam
	if ex == nil {
		return ExamResult{}, false
	}
	end := s.now()
	if !ex.active {
		end = ex.endedAt
	}
	correct := 0
	for _, q := range s.questions {
		if a := s.answers[q.ID]; a != nil && a.Submitted && a.Correct {
			correct++
		}
	}
	total := ex.questionCount
	score := 0
	if total > 0 {
		score = int(float64(correct)/float64(total)*100 + 0.5)
	}
	return ExamResult{
		Total:            total,
		Correct:          correct,
		Score:            score,
		Passed:           score >= passScore,
		ElapsedSeconds:   int(end.Sub(ex.startedAt) / time.Second),
		TimeLimitSeconds: int(ex.timeLimit / time.Second),
	}, true
}

func (s *Session) runExamTimer(ex *examState, onTick func(remaining, limit time.Duration), onTimeUp func()) {
	t := time.NewTicker(s.tickEvery)
	defer t.Stop()
	for {
		select {
		case <-ex.stop:
			return
		case <-t.C:
			s.mu.Lock()
			if !ex.active {
				s.mu.Unlock()
				return
			}
			remaining := ex.timeLimit - s.now().Sub(ex.startedAt)
			if remaining < 0 {
				remaining = 0
			}
			var st State
			var cb func(State)
			expired := remaining == 0
			if expired {
				s.endExamLocked()
				st, cb = s.stateLocked(), s.onChange
			}
			s.mu.Unlock()

			if onTick != nil {
				onTick(remaining, ex.timeLimit)
			}
			if expired {
				if cb != nil {
					cb(st)
				}
				if onTimeUp != nil {
					onTimeUp()
				}
				return
			}
		}
	}
}
