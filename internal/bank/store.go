package bank

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // driver: sqlite
)

var ErrQuestionNotFound = errors.New("question not found")

// Store reads one opened bank file. Banks are user-supplied SQLite
// databases with questions, options and meta tables; the store never
// writes to them.
type Store struct {
	db   *sql.DB
	path string
}

func Open(path string) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	dsn := "file:" + abs + "?mode=ro&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open bank: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open bank %s: %w", abs, err)
	}
	return &Store{db: db, path: abs}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Path is the bank's identity: its cleaned absolute path.
func (s *Store) Path() string { return s.path }

// Title is the display name: the meta "title" entry when present,
// otherwise the file stem.
func (s *Store) Title(ctx context.Context) string {
	meta, err := s.Meta(ctx)
	if err == nil && meta["title"] != "" {
		return meta["title"]
	}
	return strings.TrimSuffix(filepath.Base(s.path), filepath.Ext(s.path))
}

func (s *Store) Questions(ctx context.Context, f Filters) ([]Question, error) {
	sqlStr := "SELECT id, type, topic, difficulty, question_zh, question_en, image_path FROM questions WHERE 1=1"
	var args []any
	if f.Topic != "" {
		sqlStr += " AND topic = ?"
		args = append(args, f.Topic)
	}
	if f.Type != "" {
		sqlStr += " AND type = ?"
		args = append(args, f.Type)
	}
	if f.Difficulty != "" {
		sqlStr += " AND difficulty = ?"
		args = append(args, f.Difficulty)
	}
	if f.Keyword != "" {
		sqlStr += " AND (question_zh LIKE ? OR question_en LIKE ?)"
		kw := "%" + f.Keyword + "%"
		args = append(args, kw, kw)
	}
	sqlStr += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		var q Question
		var topic, diff, en, img sql.NullString
		if err := rows.Scan(&q.ID, &q.Type, &topic, &diff, &q.TextZH, &en, &img); err != nil {
			return nil, err
		}
		q.Topic, q.Difficulty, q.TextEN, q.ImagePath = topic.String, diff.String, en.String, img.String
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) Question(ctx context.Context, id int64) (QuestionDetail, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, topic, difficulty, question_zh, question_en, image_path, explanation_zh, explanation_en
		 FROM questions WHERE id = ?`, id)
	var d QuestionDetail
	var topic, diff, en, img, exzh, exen sql.NullString
	if err := row.Scan(&d.ID, &d.Type, &topic, &diff, &d.TextZH, &en, &img, &exzh, &exen); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return QuestionDetail{}, ErrQuestionNotFound
		}
		return QuestionDetail{}, err
	}
	d.Topic, d.Difficulty, d.TextEN, d.ImagePath = topic.String, diff.String, en.String, img.String
	d.ExplanationZH, d.ExplanationEN = exzh.String, exen.String

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question_id, label, text_zh, text_en, is_correct, explanation_zh, explanation_en, sort_order
		 FROM options WHERE question_id = ? ORDER BY sort_order, id`, id)
	if err != nil {
		return QuestionDetail{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var o Option
		var oen, oexzh, oexen sql.NullString
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Label, &o.TextZH, &oen, &o.IsCorrect, &oexzh, &oexen, &o.SortOrder); err != nil {
			return QuestionDetail{}, err
		}
		o.TextEN, o.ExplanationZH, o.ExplanationEN = oen.String, oexzh.String, oexen.String
		d.Options = append(d.Options, o)
	}
	return d, rows.Err()
}

func (s *Store) Topics(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT topic FROM questions WHERE topic IS NOT NULL ORDER BY topic")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Meta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM meta")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	meta := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	return meta, rows.Err()
}
