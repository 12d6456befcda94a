// Package trend fits a least-squares line through each platform/metric
// monthly series of the fact table.
package trend

import (
	"fmt"
	"math"
	"time"
)

// DataPoint is one observation; X counts months from the first point.
type DataPoint struct {
	Date time.Time
	X    float64
	Y    float64
}

// Result holds the fitted line y = Slope*x + Intercept.
type Result struct {
	Slope       float64
	Intercept   float64
	R           float64
	R2          float64
	PeriodStart time.Time
	PeriodEnd   time.Time
	Points      []DataPoint
}

// RoundToThousandth rounds to three decimal places.
func RoundToThousandth(value float64) float64 {
	return math.Round(value*1000) / 1000
}

// MonthsBetween counts whole calendar months from start to t.
func MonthsBetween(start, t time.Time) int {
	return (t.Year()-start.Year())*12 + int(t.Month()) - int(start.Month())
}

// LinearRegression fits points by ordinary least squares. All coefficients
// are rounded to thousandths.
func LinearRegression(points []DataPoint) (*Result, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("linear regression needs at least 2 points, got %d", len(points))
	}

	minDate, maxDate := points[0].Date, points[0].Date
	for _, p := range points {
		if p.Date.Before(minDate) {
			minDate = p.Date
		}
		if p.Date.After(maxDate) {
			maxDate = p.Date
		}
	}

	// a = (n*Σxy - Σx*Σy) / (n*Σx² - (Σx)²)
	// b = (Σy - a*Σx) / n
	n := float64(len(points))
	var sumX, sumY, sumXY, sumX2, sumY2 float64
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
		sumXY += p.X * p.Y
		sumX2 += p.X * p.X
		sumY2 += p.Y * p.Y
	}

	denominator := n*sumX2 - sumX*sumX
	if math.Abs(denominator) < 1e-10 {
		return nil, fmt.Errorf("all X values are equal, slope is undefined")
	}

	a := (n*sumXY - sumX*sumY) / denominator
	b := (sumY - a*sumX) / n

	// Pearson r
	numerator := n*sumXY - sumX*sumY
	denominator = math.Sqrt((n*sumX2 - sumX*sumX) * (n*sumY2 - sumY*sumY))

	var r float64
	if math.Abs(denominator) >= 1e-10 {
		r = numerator / denominator
	}

	return &Result{
		Slope:       RoundToThousandth(a),
		Intercept:   RoundToThousandth(b),
		R:           RoundToThousandth(r),
		R2:          RoundToThousandth(r * r),
		PeriodStart: minDate,
		PeriodEnd:   maxDate,
		Points:      points,
	}, nil
}

// Predict evaluates the fitted line at x.
func Predict(result *Result, x float64) float64 {
	return RoundToThousandth(result.Slope*x + result.Intercept)
}
