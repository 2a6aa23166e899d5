package engine

import "github.com/quizforge/quizforge/internal/bank"

// Answer is the per-question ledger record. Once Submitted it is
// frozen; Correct is only meaningful on submitted records.
type Answer struct {
	Selected  []string `json:"selected"`
	Submitted bool     `json:"submitted"`
	Correct   bool     `json:"correct"`
}

func (a *Answer) clone() *Answer {
	if a == nil {
		return nil
	}
	c := *a
	c.Selected = append([]string(nil), a.Selected...)
	return &c
}

// State is the read model the presentation layer renders from. Every
// field is recomputed on each call.
type State struct {
	Total           int            `json:"total"`
	CurrentIndex    int            `json:"current_index"`
	AnsweredCount   int            `json:"answered_count"`
	CorrectCount    int            `json:"correct_count"`
	Rate            *int           `json:"rate"`         // percent, null until something is submitted
	HistoryRate     *int           `json:"history_rate"` // percent across all past sessions, null when no history
	HasNext         bool           `json:"has_next"`
	HasPrev         bool           `json:"has_prev"`
	CurrentQuestion *bank.Question `json:"current_question"`
	CurrentAnswer   *Answer        `json:"current_answer"`
	ExamActive      bool           `json:"exam_active"`
}

func (s *Session) stateLocked() State {
	st := State{
		Total:        len(s.questions),
		CurrentIndex: s.current,
		HasNext:      s.current < len(s.questions)-1,
		HasPrev:      s.current > 0,
		ExamActive:   s.exam != nil && s.exam.active,
	}
	for _, a := range s.answers {
		if !a.Submitted {
			continue
		}
		st.AnsweredCount++
		if a.Correct {
			st.CorrectCount++
		}
	}
	if st.AnsweredCount > 0 {
		st.Rate = pct(st.CorrectCount, st.AnsweredCount)
	}
	var histAnswered, histCorrect int
	for _, e := range s.history {
		histAnswered += e.Answered
		histCorrect += e.Correct
	}
	if histAnswered > 0 {
		st.HistoryRate = pct(histCorrect, histAnswered)
	}
	if s.current < len(s.questions) {
		q := s.questions[s.current]
		st.CurrentQuestion = &q
		st.CurrentAnswer = s.answers[q.ID].clone()
	}
	return st
}

// State derives a fresh snapshot without mutating anything.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func pct(part, whole int) *int {
	v := int(float64(part)/float64(whole)*100 + 0.5)
	return &v
}
