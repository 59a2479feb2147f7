// Package statmath provides the small set of descriptive statistics used by
// the drift analysis: mean, standard deviation, Poisson probability, and
// display rounding.
package statmath

import "math"

// Mean returns the arithmetic mean of nums. An empty slice yields NaN; callers
// are expected to guard against degenerate samples before reporting.
func Mean(nums []float64) float64 {
	var sum float64
	for _, n := range nums {
		sum += n
	}
	return sum / float64(len(nums))
}

// StdDeviation returns the standard deviation of nums, rounded to two decimal
// places for display. When sample is true the Bessel-corrected (n-1) divisor
// is used, matching the sampled-vs-population distinction of the analysis.
func StdDeviation(nums []float64, sample bool) float64 {
	n := float64(len(nums))
	if sample {
		n--
	}
	mean := Mean(nums)
	var sos float64
	for _, v := range nums {
		sos += (v - mean) * (v - mean)
	}
	variance := sos / n
	return math.Round(math.Sqrt(variance)*100) / 100
}

// PoissonProbability returns 1 / (lambda * e^(interval*lambda)), the expected
// recurrence of an event with rate lambda over the (negative) interval. The
// drift analysis feeds it the block rate per hour and the threshold gap in
// hours to estimate how often a gap that long should occur.
func PoissonProbability(lambda, interval float64) float64 {
	return 1.0 / (lambda * math.Pow(math.E, interval*lambda))
}

// RoundedBy rounds num to the given number of decimal places.
func RoundedBy(num float64, precision uint) float64 {
	scale := math.Pow(10, float64(precision))
	return math.Round(num*scale) / scale
}
