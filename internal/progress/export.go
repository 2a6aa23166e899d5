package progress

import (
	"context"
	"errors"
	"time"
)

// ExportDoc is the portable progress format. The map keys marshal as
// strings, matching what older exports produced.
type ExportDoc struct {
	Bank       string          `json:"bank"`
	ExportedAt time.Time       `json:"exported_at"`
	Progress   map[int64]Entry `json:"progress"`
}

func (b *BankStore) Export(ctx context.Context) (ExportDoc, error) {
	entries, err := b.Load(ctx)
	if err != nil {
		return ExportDoc{}, err
	}
	return ExportDoc{Bank: b.bankID, ExportedAt: time.Now().UTC(), Progress: entries}, nil
}

// Import merges exported counts into the existing rows; it never
// decreases a counter.
func (b *BankStore) Import(ctx context.Context, doc ExportDoc) error {
	if doc.Progress == nil {
		return errors.New("invalid progress format")
	}
	now := time.Now().Unix()
	for qid, e := range doc.Progress {
		if e.Answered <= 0 {
			continue
		}
		if e.Correct < 0 {
			e.Correct = 0
		}
		if e.Correct > e.Answered {
			e.Correct = e.Answered
		}
		_, err := b.db.ExecContext(ctx,
			`INSERT INTO progress (bank_id, question_id, answered, correct, last_answer, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (bank_id, question_id) DO UPDATE SET
			   answered = progress.answered + $3,
			   correct = progress.correct + $4,
			   last_answer = $5,
			   updated_at = $6`,
			b.bankID, qid, e.Answered, e.Correct, e.LastAnswer, now)
		if err != nil {
			return err
		}
	}
	return nil
}
