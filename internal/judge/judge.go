// Package judge 客观题自动判分
package judge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"exam_practice_backend/internal/model"
)

// Verdict 判分结果，short_answer 无法自动判分时为 PendingManual
type Verdict int

const (
	Incorrect Verdict = iota
	Correct
	PendingManual
)

func (v Verdict) Outcome() model.AnswerOutcome {
	switch v {
	case Correct:
		return model.OutcomeCorrect
	case PendingManual:
		return model.OutcomePendingManual
	default:
		return model.OutcomeIncorrect
	}
}

// Judge 根据题型比较标准答案与提交答案。
// canonical 与 submitted 都是 JSON 编码的值，格式不符合题型的提交一律判错。
func Judge(qType model.QuestionType, canonical, submitted string) Verdict {
	if qType == model.ShortAnswer {
		return PendingManual
	}

	want, ok := decode(canonical)
	if !ok {
		return Incorrect
	}
	got, ok := decode(submitted)
	if !ok {
		return Incorrect
	}

	var correct bool
	switch qType {
	case model.SingleChoice, model.TrueFalse:
		correct = scalarEqual(want, got)
	case model.MultipleChoice:
		correct = sameSet(want, got)
	case model.FillBlank:
		correct = blanksMatch(want, got)
	}
	if correct {
		return Correct
	}
	return Incorrect
}

func decode(raw string) (interface{}, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, false
	}
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false
	}
	return v, v != nil
}

func isScalar(v interface{}) bool {
	switch v.(type) {
	case string, bool, float64:
		return true
	}
	return false
}

func scalarEqual(a, b interface{}) bool {
	if !isScalar(a) || !isScalar(b) {
		return false
	}
	return a == b
}

func scalarList(v interface{}) ([]string, bool) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if !isScalar(e) {
			return nil, false
		}
		out = append(out, fmt.Sprintf("%T:%v", e, e))
	}
	return out, true
}

func sameSet(want, got interface{}) bool {
	w, ok := scalarList(want)
	if !ok {
		return false
	}
	g, ok := scalarList(got)
	if !ok || len(w) != len(g) {
		return false
	}
	sort.Strings(w)
	sort.Strings(g)
	for i := range w {
		if w[i] != g[i] {
			return false
		}
	}
	return true
}

func blankList(v interface{}) ([]string, bool) {
	switch t := v.(type) {
	case string:
		return []string{t}, true
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func blanksMatch(want, got interface{}) bool {
	w, ok := blankList(want)
	if !ok || len(w) == 0 {
		return false
	}
	g, ok := blankList(got)
	if !ok || len(w) != len(g) {
		return false
	}
	for i := range w {
		if !strings.EqualFold(strings.TrimSpace(w[i]), strings.TrimSpace(g[i])) {
			return false
		}
	}
	return true
}
