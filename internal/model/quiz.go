package model

// QuestionType is the closed set of question variants the Game Controller
// knows how to grade.
type QuestionType string

const (
	QuestionSingleMCQ   QuestionType = "singleMcq"
	QuestionTrueFalse   QuestionType = "trueFalse"
	QuestionMultiMCQ    QuestionType = "multiMcq"
	QuestionDragAndDrop QuestionType = "dragAndDrop"
)

// Question is one entry in a Quiz's ordered question list. Only one of
// CorrectIndex, CorrectIndices, CorrectMatches is populated, depending on
// Type.
type Question struct {
	ID             string       `json:"id"`
	Text           string       `json:"question"`
	Type           QuestionType `json:"type"`
	Options        []string     `json:"options,omitempty"`
	TimeLimit      int          `json:"timeLimit,omitempty"`
	CorrectIndex   int          `json:"correctAnswerIndex"`
	CorrectIndices []int        `json:"correctAnswerIndices,omitempty"`
	CorrectMatches map[string]string `json:"correctMatches,omitempty"`
}

// Quiz is the read-only reference document backing a session. It is
// loaded from the document store and cached in the fast store per session.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// TotalQuestions returns the number of questions in the quiz.
func (q *Quiz) TotalQuestions() int {
	return len(q.Questions)
}

// QuestionAt returns the question at idx, or false if idx is out of range.
func (q *Quiz) QuestionAt(idx int) (Question, bool) {
	if idx < 0 || idx >= len(q.Questions) {
		return Question{}, false
	}
	return q.Questions[idx], true
}
