package model

// All 需要自动迁移的模型
func All() []interface{} {
	return []interface{}{
		&Question{},
		&QuestionTag{},
		&KnowledgePoint{},
		&QuestionKnowledgePoint{},
		&PracticeSession{},
		&PracticeSessionItem{},
		&PracticeRecord{},
		&WrongBook{},
		&ReviewDailyTask{},
		&ExamPaper{},
		&ExamPaperItem{},
		&ExamAttempt{},
		&ExamAttemptItem{},
		&ManualGradingTask{},
	}
}
