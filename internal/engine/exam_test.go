package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quizforge/quizforge/internal/bank"
)

// fakeClock lets the exam timer observe simulated time while the
// ticker itself runs on a short real interval.
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{cur: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.cur = c.cur.Add(d)
	c.mu.Unlock()
}

func bankOfSize(n int) []bank.Question {
	var qs []bank.Question
	for i := 1; i <= n; i++ {
		qs = append(qs, bank.Question{ID: int64(i), Type: bank.TypeSingle, Topic: "anatomy"})
	}
	return qs
}

func newExamSession(t *testing.T, n int, opts ...Option) (*Session, *fakeProgress) {
	t.Helper()
	src := &fakeSource{questions: bankOfSize(n)}
	prog := newFakeProgress()
	return New("/banks/exam.db", src, prog, newFakeCache(), opts...), prog
}

func TestStartExamFailsWhenNotEnoughQuestions(t *testing.T) {
	s, _ := newExamSession(t, 4)
	mustLoad(t, s)
	before := s.State()

	err := s.StartExam(context.Background(), bank.Filters{}, 0, 10, nil, nil)
	if !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("err = %v, want ErrNoQuestions", err)
	}
	after := s.State()
	if after.ExamActive {
		t.Fatal("exam session created despite failure")
	}
	if after.Total != before.Total || after.CurrentIndex != before.CurrentIndex {
		t.Fatalf("state changed on failed start: %+v -> %+v", before, after)
	}
}

func TestStartExamFailsOnZeroMatches(t *testing.T) {
	s, _ := newExamSession(t, 4)
	err := s.StartExam(context.Background(), bank.Filters{Topic: "histology"}, 10, 2, nil, nil)
	if !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("err = %v, want ErrNoQuestions", err)
	}
}

func TestStartExamTruncatesToRequestedCount(t *testing.T) {
	s, _ := newExamSession(t, 20)
	if err := s.StartExam(context.Background(), bank.Filters{}, 0, 5, nil, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	st := s.State()
	if !st.ExamActive || st.Total != 5 || st.CurrentIndex != 0 {
		t.Fatalf("state = %+v", st)
	}
}

func TestGoPrevRejectedWhileExamActive(t *testing.T) {
	s, _ := newExamSession(t, 5)
	ctx := context.Background()
	if err := s.StartExam(ctx, bank.Filters{}, 0, 5, nil, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.GoNext(ctx)
	s.GoNext(ctx)
	s.GoPrev(ctx)
	if got := s.State().CurrentIndex; got != 2 {
		t.Fatalf("GoPrev moved the cursor during an exam: %d", got)
	}
	// jumping forward is still allowed
	s.GoTo(ctx, 4)
	if got := s.State().CurrentIndex; got != 4 {
		t.Fatalf("GoTo rejected during exam: %d", got)
	}

	s.EndExam()
	s.GoPrev(ctx)
	if got := s.State().CurrentIndex; got != 3 {
		t.Fatalf("GoPrev still rejected after exam end: %d", got)
	}
}

func TestExamExpiryFiresTimeUpOnce(t *testing.T) {
	clock := newFakeClock()
	s, _ := newExamSession(t, 5,
		WithClock(clock.Now), WithTickInterval(time.Millisecond))

	var timeUps atomic.Int32
	timeUp := make(chan struct{}, 4)
	var lastRemaining atomic.Int64
	onTick := func(remaining, limit time.Duration) {
		lastRemaining.Store(int64(remaining))
	}
	onTimeUp := func() {
		timeUps.Add(1)
		timeUp <- struct{}{}
	}

	if err := s.StartExam(context.Background(), bank.Filters{}, 1, 5, onTick, onTimeUp); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(60 * time.Second)

	select {
	case <-timeUp:
	case <-time.After(2 * time.Second):
		t.Fatal("onTimeUp never fired")
	}
	// give a stray second invocation time to show up
	time.Sleep(20 * time.Millisecond)
	if n := timeUps.Load(); n != 1 {
		t.Fatalf("onTimeUp fired %d times", n)
	}
	if s.State().ExamActive {
		t.Fatal("exam still active after expiry")
	}
	if lastRemaining.Load() != 0 {
		t.Fatalf("final tick remaining = %v", time.Duration(lastRemaining.Load()))
	}
}

func TestEndExamIdempotentAndRaceSafe(t *testing.T) {
	clock := newFakeClock()
	s, _ := newExamSession(t, 5,
		WithClock(clock.Now), WithTickInterval(time.Millisecond))

	var timeUps atomic.Int32
	if err := s.StartExam(context.Background(), bank.Filters{}, 1, 5, nil, func() { timeUps.Add(1) }); err != nil {
		t.Fatalf("start: %v", err)
	}
	// the user ends the exam just as the clock runs out
	clock.Advance(60 * time.Second)
	s.EndExam()
	s.EndExam()
	time.Sleep(20 * time.Millisecond)

	if s.State().ExamActive {
		t.Fatal("exam active after EndExam")
	}
	if n := timeUps.Load(); n > 1 {
		t.Fatalf("onTimeUp fired %d times", n)
	}
}

func TestExamResultScoring(t *testing.T) {
	clock := newFakeClock()
	s, _ := newExamSession(t, 5, WithClock(clock.Now))
	ctx := context.Background()
	if err := s.StartExam(ctx, bank.Filters{}, 0, 5, nil, nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	// answer three of five correctly
	correct := 0
	for _, q := range bankOfSize(5) {
		s.GoTo(ctx, indexOf(t, s, q.ID))
		if correct < 3 {
			s.SelectOption(ctx, q.ID, "A")
			correct++
		} else {
			s.SelectOption(ctx, q.ID, "B")
		}
		if _, err := s.SubmitAnswer(ctx, q.ID, abcOptions("A")); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	clock.Advance(150 * time.Second)
	s.EndExam()

	res, ok := s.ExamResult()
	if !ok {
		t.Fatal("no exam result")
	}
	if res.Total != 5 || res.Correct != 3 || res.Score != 60 || !res.Passed {
		t.Fatalf("result = %+v", res)
	}
	if res.ElapsedSeconds != 150 {
		t.Fatalf("elapsed = %d, want 150", res.ElapsedSeconds)
	}

	// the result is frozen once ended
	clock.Advance(time.Hour)
	again, _ := s.ExamResult()
	if again.ElapsedSeconds != 150 {
		t.Fatalf("elapsed drifted after end: %d", again.ElapsedSeconds)
	}
}

func TestLoadCancelsRunningExam(t *testing.T) {
	clock := newFakeClock()
	s, _ := newExamSession(t, 5,
		WithClock(clock.Now), WithTickInterval(time.Millisecond))
	ctx := context.Background()

	var timeUps atomic.Int32
	if err := s.StartExam(ctx, bank.Filters{}, 1, 5, nil, func() { timeUps.Add(1) }); err != nil {
		t.Fatalf("start: %v", err)
	}
	mustLoad(t, s)

	st := s.State()
	if st.ExamActive {
		t.Fatal("exam survived a load")
	}
	if _, ok := s.ExamResult(); ok {
		t.Fatal("stale exam result over the new sequence")
	}
	// navigation is no longer exam-gated
	s.GoNext(ctx)
	s.GoPrev(ctx)
	if got := s.State().CurrentIndex; got != 0 {
		t.Fatalf("GoPrev still rejected after load: %d", got)
	}
	// the timer must be gone with the exam
	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	if n := timeUps.Load(); n != 0 {
		t.Fatalf("cancelled exam timer fired %d times", n)
	}
}

func TestExamResultBeforeAnyExam(t *testing.T) {
	s, _ := newExamSession(t, 5)
	if _, ok := s.ExamResult(); ok {
		t.Fatal("result reported with no exam")
	}
}

func TestExamNeverTouchesSessionCache(t *testing.T) {
	src := &fakeSource{questions: bankOfSize(5)}
	c := newFakeCache()
	s := New("/banks/exam.db", src, newFakeProgress(), c)
	ctx := context.Background()

	if err := s.StartExam(ctx, bank.Filters{}, 0, 5, nil, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.GoNext(ctx)
	s.SelectOption(ctx, s.State().CurrentQuestion.ID, "A")
	if len(c.data) != 0 {
		t.Fatal("exam state leaked into the session cache")
	}
}

// indexOf finds a question's position in the shuffled exam sequence.
func indexOf(t *testing.T, s *Session, questionID int64) int {
	t.Helper()
	st := s.State()
	ctx := context.Background()
	for i := 0; i < st.Total; i++ {
		s.GoTo(ctx, i)
		if q := s.State().CurrentQuestion; q != nil && q.ID == questionID {
			return i
		}
	}
	t.Fatalf("question %d not in sequence", questionID)
	return -1
}
