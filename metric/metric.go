package metric

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean of the sample, zero for an empty one.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// Payoff returns the ratio of average win to average loss. With no losses in
// the sample the ratio is capped at 10.
func Payoff(values []float64) float64 {
	var wins, losses []float64
	for _, v := range values {
		if v >= 0 {
			wins = append(wins, v)
		} else {
			losses = append(losses, v)
		}
	}
	if len(losses) == 0 {
		return 10
	}
	avgLoss := stat.Mean(losses, nil)
	if avgLoss == 0 {
		return 10
	}
	return math.Abs(stat.Mean(wins, nil) / avgLoss)
}

// ProfitFactor returns total profit over total loss, capped at 10 when the
// sample has no losses.
func ProfitFactor(values []float64) float64 {
	var totalWins, totalLosses float64
	for _, v := range values {
		if v >= 0 {
			totalWins += v
		} else {
			totalLosses += v
		}
	}
	if totalLosses == 0 {
		return 10
	}
	return math.Abs(totalWins / totalLosses)
}
