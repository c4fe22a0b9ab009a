package report

import (
	"math"

	"github.com/houzhh15/factlens/cmd/server/internal/models"
)

const (
	neutralScore = 50

	// unverifiableShare is the weight share of unverifiable claims at which
	// the overall verdict becomes unverifiable regardless of score.
	unverifiableShare = 0.6
)

var verdictBase = map[models.ClaimVerdict]float64{
	models.ClaimSupported:    1.0,
	models.ClaimContradicted: 0.0,
	models.ClaimMixed:        0.6,
	models.ClaimUnverifiable: 0.5,
}

// correctness maps a verdict and confidence into 0..1. Low confidence pulls
// the value toward 0.5.
func correctness(verdict models.ClaimVerdict, confidence int) float64 {
	base, ok := verdictBase[verdict]
	if !ok {
		base = 0.5
	}
	conf := math.Max(0, math.Min(1, float64(confidence)/100))
	return 0.5 + (base-0.5)*conf
}

// ScoreClaims computes the weighted overall score and verdict. It sets the
// weight of not_a_factual_claim entries to 0 and, when every scorable weight
// is 0, gives each scorable claim weight 1. ok is false when no claim is
// scorable, in which case the neutral 50/unverifiable pair is returned.
func ScoreClaims(claims []models.Claim) (score int, verdict models.OverallVerdict, ok bool) {
	scorable := 0
	weightSum := 0
	for i := range claims {
		if claims[i].Verdict == models.ClaimNotFactualClaim {
			claims[i].Weight = 0
			continue
		}
		scorable++
		weightSum += claims[i].Weight
	}
	if scorable == 0 {
		return neutralScore, models.VerdictUnverifiable, false
	}
	if weightSum <= 0 {
		for i := range claims {
			if claims[i].Verdict != models.ClaimNotFactualClaim {
				claims[i].Weight = 1
			}
		}
	}

	var total, weighted, unverifiable float64
	for _, c := range claims {
		if c.Verdict == models.ClaimNotFactualClaim || c.Weight <= 0 {
			continue
		}
		w := float64(c.Weight)
		total += w
		weighted += w * correctness(c.Verdict, c.Confidence)
		if c.Verdict == models.ClaimUnverifiable {
			unverifiable += w
		}
	}
	if total <= 0 {
		return neutralScore, models.VerdictUnverifiable, false
	}

	score = clamp(int(math.RoundToEven(weighted/total*100)), 0, 100)
	if unverifiable/total >= unverifiableShare {
		return score, models.VerdictUnverifiable, true
	}
	return score, VerdictForScore(score), true
}

// VerdictForScore maps a 0-100 score onto the verdict bands.
func VerdictForScore(score int) models.OverallVerdict {
	switch {
	case score >= 90:
		return models.VerdictAccurate
	case score >= 70:
		return models.VerdictMostlyAccurate
	case score >= 40:
		return models.VerdictMixed
	case score >= 10:
		return models.VerdictMisleading
	default:
		return models.VerdictFalse
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
