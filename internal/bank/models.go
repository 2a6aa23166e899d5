package bank

// Question types as stored in the bank file.
const (
	TypeSingle    = "single"
	TypeMultiple  = "multiple"
	TypeTrueFalse = "truefalse"
)

type Question struct {
	ID         int64  `json:"id"`
	Type       string `json:"type"` // single|multiple|truefalse
	Topic      string `json:"topic,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	TextZH     string `json:"question_zh"`
	TextEN     string `json:"question_en,omitempty"`
	ImagePath  string `json:"image_path,omitempty"`
}

type Option struct {
	ID            int64  `json:"id"`
	QuestionID    int64  `json:"question_id"`
	Label         string `json:"label"` // "A".."D" or "True"/"False"
	TextZH        string `json:"text_zh"`
	TextEN        string `json:"text_en,omitempty"`
	IsCorrect     bool   `json:"is_correct"`
	ExplanationZH string `json:"explanation_zh,omitempty"`
	ExplanationEN string `json:"explanation_en,omitempty"`
	SortOrder     int    `json:"sort_order"`
}

type QuestionDetail struct {
	Question
	ExplanationZH string   `json:"explanation_zh,omitempty"`
	ExplanationEN string   `json:"explanation_en,omitempty"`
	Options       []Option `json:"options"`
}

// Filters are forwarded verbatim to the bank query; empty fields are
// not constrained. Keyword matches either stem language as a substring.
type Filters struct {
	Topic      string `json:"topic,omitempty"`
	Type       string `json:"type,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Keyword    string `json:"keyword,omitempty"`
}

func (f Filters) IsZero() bool {
	return f.Topic == "" && f.Type == "" && f.Difficulty == "" && f.Keyword == ""
}

type Info struct {
	Path  string `json:"path"`
	Title string `json:"title"`
}
