package importer

import "math"

const weightTolerance = 1e-9

// checkMultipleChoiceWeights validates the four answer weights against the
// grading schemes: one correct answer (100), two (50), three (33) or all four
// (25). The 33/50/100 checks compare truncated integers. The dominant scheme
// is checked first so a row reports the rule it was written for.
func checkMultipleChoiceWeights(w [4]float64) *rejection {
	total := 0.0
	for _, v := range w {
		total += v
	}
	has := func(n int) bool {
		for _, v := range w {
			if int(v) == n {
				return true
			}
		}
		return false
	}
	hasExact := func(n float64) bool {
		for _, v := range w {
			if v == n {
				return true
			}
		}
		return false
	}

	switch {
	case has(100) && !near(total, 100) && !near(total, -200):
		return reject(CatScoreRule, MsgOneOfFourWrong)
	case has(50) && !near(total, 0):
		return reject(CatScoreRule, MsgTwoOfFourWrong)
	case has(33) && total > 1:
		return reject(CatScoreRule, MsgThreeOfFourWrong)
	case hasExact(25) && !near(total, 100):
		return reject(CatScoreRule, MsgFourOfFourWrong)
	case near(total, 0) && !has(33) && !has(50):
		return reject(CatScoreRule, MsgMissingPoints)
	}
	return nil
}

func checkTrueFalseWeights(trueWeight, falseWeight float64) *rejection {
	total := trueWeight + falseWeight
	if (int(trueWeight) == 100 || int(falseWeight) == 100) && !near(total, 100) {
		return reject(CatScoreRule, MsgTrueFalseWrong)
	}
	if near(total, 0) {
		return reject(CatScoreRule, MsgMissingPoints)
	}
	return nil
}

func near(a, b float64) bool {
	return math.Abs(a-b) < weightTolerance
}
