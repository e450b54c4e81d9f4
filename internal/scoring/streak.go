package scoring

// NextStreak is the streak after a reveal: prev+1 when the submitted option
// matches the correct one, zero on a wrong or missing submission.
func NextStreak(prev int, submitted *int, correctIndex int) int {
	if submitted == nil || *submitted != correctIndex {
		return 0
	}
	return prev + 1
}

// Estimate is the points-earned figure shown right after a reveal. It is
// presentation only and never feeds back into a score.
//
// A reported value (from the submit ack or answer feedback) wins over the
// question's nominal points. multiplier applies the double-points effect.
func Estimate(reported *int, nominal int, correct bool, multiplier int) int {
	if !correct {
		return 0
	}
	if multiplier < 1 {
		multiplier = 1
	}
	points := nominal
	if reported != nil {
		points = *reported
	}
	return points * multiplier
}
