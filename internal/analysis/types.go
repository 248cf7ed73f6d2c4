package analysis

import "time"

// ContentKind says where analysed content came from.
type ContentKind string

const (
	KindText ContentKind = "text"
	KindURL  ContentKind = "url"
	KindFile ContentKind = "file"
)

// IsValid reports whether k is a recognised content kind.
func (k ContentKind) IsValid() bool {
	switch k {
	case KindText, KindURL, KindFile:
		return true
	}
	return false
}

// LearningMode tailors the generated quiz to how the learner studies.
type LearningMode string

const (
	ModeStandard LearningMode = "standard"
	ModeAudio    LearningMode = "audio"
	ModeVisual   LearningMode = "visual"
)

// IsValid reports whether m is a recognised learning mode.
func (m LearningMode) IsValid() bool {
	switch m {
	case ModeStandard, ModeAudio, ModeVisual:
		return true
	}
	return false
}

// Content is one piece of study material submitted for analysis.
type Content struct {
	// Kind selects how Text and URL are interpreted. Empty means text.
	Kind ContentKind `json:"kind"`

	// Text is the material itself for KindText, or the decoded file body
	// for KindFile.
	Text string `json:"text,omitempty"`

	// URL is the address submitted with KindURL. It is not fetched.
	URL string `json:"url,omitempty"`

	// Title is the user's title for the material. Optional.
	Title string `json:"title,omitempty"`

	// Subject is the academic subject. Optional.
	Subject string `json:"subject,omitempty"`

	// LearningMode defaults to standard.
	LearningMode LearningMode `json:"learningMode,omitempty"`
}

// Difficulty grades a quiz question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is a multiple-choice quiz question.
type Question struct {
	ID            string     `json:"id"`
	Question      string     `json:"question"`
	Options       []string   `json:"options"`
	CorrectAnswer int        `json:"correctAnswer"`
	Explanation   string     `json:"explanation"`
	Difficulty    Difficulty `json:"difficulty"`
}

// Quiz is generated from submitted content.
type Quiz struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Questions     []Question `json:"questions"`
	SourceContent string     `json:"sourceContent"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// FactStatus is the verdict on one checked statement.
type FactStatus string

const (
	FactVerified     FactStatus = "verified"
	FactQuestionable FactStatus = "questionable"
	FactFalse        FactStatus = "false"
)

// FactCheck is the verdict on one statement found in the content.
type FactCheck struct {
	ID           string     `json:"id"`
	OriginalText string     `json:"originalText"`
	Status       FactStatus `json:"status"`
	Correction   string     `json:"correction,omitempty"`
	Sources      []string   `json:"sources"`
	Confidence   float64    `json:"confidence"`
}

// Result is the complete outcome of [Service.Analyze]. It is only ever
// returned whole.
type Result struct {
	Quiz       Quiz        `json:"quiz"`
	FactChecks []FactCheck `json:"factChecks"`
}

// Level is the academic level of an explanation.
type Level string

const (
	LevelUndergraduate Level = "undergraduate"
	LevelGraduate      Level = "graduate"
	LevelDoctorate     Level = "doctorate"
	LevelExpert        Level = "expert"
)

// IsValid reports whether l is a recognised academic level.
func (l Level) IsValid() bool {
	switch l {
	case LevelUndergraduate, LevelGraduate, LevelDoctorate, LevelExpert:
		return true
	}
	return false
}

// ExplainRequest asks for a professional explanation of a topic.
type ExplainRequest struct {
	Topic    string `json:"topic"`
	Subject  string `json:"subject"`
	Language string `json:"language,omitempty"`
	Level    Level  `json:"level,omitempty"`
}

// Source is a reference attached to an explanation.
type Source struct {
	Title       string  `json:"title"`
	Type        string  `json:"type"`
	Year        string  `json:"year"`
	URL         string  `json:"url"`
	Credibility float64 `json:"credibility"`
}

// Explanation is returned by [Service.Explain].
type Explanation struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Subject   string    `json:"subject"`
	Level     Level     `json:"level"`
	Content   string    `json:"content"`
	Sources   []Source  `json:"sources"`
	CreatedAt time.Time `json:"createdAt"`
}
