package domain

// MediaRole identifies which of a card's four media slots a file belongs to.
type MediaRole int

const (
	QuestionImage MediaRole = iota
	AnswerImage
	QuestionVoice
	AnswerVoice
)

// MediaRoles lists every role in the order cards are scanned for media.
var MediaRoles = []MediaRole{QuestionImage, AnswerImage, QuestionVoice, AnswerVoice}

// IsImage reports whether the role holds an image rather than a recording.
func (r MediaRole) IsImage() bool {
	return r == QuestionImage || r == AnswerImage
}

func (r MediaRole) String() string {
	switch r {
	case QuestionImage:
		return "question_image"
	case AnswerImage:
		return "answer_image"
	case QuestionVoice:
		return "question_voice"
	case AnswerVoice:
		return "answer_voice"
	}
	return "unknown"
}
