package app

import "math"

const (
	// rankPenalty is how much of the base value the slowest correct answer
	// loses relative to the fastest.
	rankPenalty = 0.5
	// minCreditRatio guarantees late-but-correct answers still score.
	minCreditRatio = 0.3
)

// scoreForRank derives points for a correct answer from its 1-based rank among
// all correct answers for the question. A sole correct answer gets full credit;
// otherwise credit decays linearly with rank down to the minimum-credit floor.
func scoreForRank(basePoints, rank, totalCorrect int) int {
	if totalCorrect <= 1 {
		return basePoints
	}
	percentage := 1.0 - (float64(rank-1)/float64(totalCorrect))*rankPenalty
	points := int(math.Round(float64(basePoints) * percentage))
	floor := int(math.Round(float64(basePoints) * minCreditRatio))
	if points < floor {
		points = floor
	}
	return points
}
