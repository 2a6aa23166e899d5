package progress

import (
	"context"
	"database/sql"
	"time"
)

// Entry is the cumulative record for one question across sessions.
type Entry struct {
	Answered   int    `json:"answered"`
	Correct    int    `json:"correct"`
	LastAnswer string `json:"last_answer,omitempty"`
}

// Store persists per-question progress in the app-state DB, scoped by
// bank identity. The same upsert works on sqlite and postgres.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// ForBank binds the store to one bank; the engine only ever sees the
// bank-scoped view.
func (s *Store) ForBank(bankID string) *BankStore {
	return &BankStore{db: s.db, bankID: bankID}
}

type BankStore struct {
	db     *sql.DB
	bankID string
}

func (b *BankStore) BankID() string { return b.bankID }

func (b *BankStore) Save(ctx context.Context, questionID int64, answer string, correct bool) error {
	c := 0
	if correct {
		c = 1
	}
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO progress (bank_id, question_id, answered, correct, last_answer, updated_at)
		 VALUES ($1, $2, 1, $3, $4, $5)
		 ON CONFLICT (bank_id, question_id) DO UPDATE SET
		   answered = progress.answered + 1,
		   correct = progress.correct + $3,
		   last_answer = $4,
		   updated_at = $5`,
		b.bankID, questionID, c, answer, time.Now().Unix())
	return err
}

func (b *BankStore) Load(ctx context.Context) (map[int64]Entry, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT question_id, answered, correct, last_answer FROM progress WHERE bank_id = $1`,
		b.bankID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64]Entry{}
	for rows.Next() {
		var qid int64
		var e Entry
		var last sql.NullString
		if err := rows.Scan(&qid, &e.Answered, &e.Correct, &last); err != nil {
			return nil, err
		}
		e.LastAnswer = last.String
		out[qid] = e
	}
	return out, rows.Err()
}

func (b *BankStore) Reset(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM progress WHERE bank_id = $1`, b.bankID)
	return err
}
