package model

// AnswerOutcome 作答结果，区分"未作答"和"待人工评阅"
type AnswerOutcome string

const (
	OutcomeUnanswered    AnswerOutcome = "unanswered"
	OutcomeCorrect       AnswerOutcome = "correct"
	OutcomeIncorrect     AnswerOutcome = "incorrect"
	OutcomePendingManual AnswerOutcome = "pending_manual"
)

// IsCorrect 兼容旧接口的可空布尔视图：只有已判定的结果才返回非 nil
func (o AnswerOutcome) IsCorrect() *bool {
	switch o {
	case OutcomeCorrect:
		v := true
		return &v
	case OutcomeIncorrect:
		v := false
		return &v
	default:
		return nil
	}
}

func (o AnswerOutcome) Graded() bool {
	return o == OutcomeCorrect || o == OutcomeIncorrect
}

func OutcomeFromBool(correct bool) AnswerOutcome {
	if correct {
		return OutcomeCorrect
	}
	return OutcomeIncorrect
}
