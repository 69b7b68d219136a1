// Package mii computes the Memory Integrity Index, the composite health
// score that downstream quality decisions key off.
package mii

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/voxmetrics/sentinel/internal/model"
)

// HealthStatus buckets an MII score for human consumption.
type HealthStatus string

const (
	HealthExcellent HealthStatus = "excellent"
	HealthGood      HealthStatus = "good"
	HealthFair      HealthStatus = "fair"
	HealthPoor      HealthStatus = "poor"
	HealthCritical  HealthStatus = "critical"
)

// Trend direction over recent calculations.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
)

// Component is one weighted input to a dimension score.
type Component struct {
	Name       string  `json:"name"`
	Weight     float64 `json:"weight"`
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Dimension is one axis of the composite score.
type Dimension struct {
	Name       string      `json:"dimension"`
	Score      float64     `json:"score"`
	Components []Component `json:"components"`
	Trend      Trend       `json:"trend"`
}

// Report is the full output of one MII calculation.
type Report struct {
	Score           float64      `json:"mii_score"`
	Health          HealthStatus `json:"health_status"`
	Dimensions      []Dimension  `json:"dimensions"`
	Trend           Trend        `json:"trend"`
	Insights        []string     `json:"insights"`
	Recommendations []string     `json:"recommendations"`
	Timestamp       time.Time    `json:"timestamp"`
}

// RunStats carries the closed-run figures the calculator consumes.
type RunStats struct {
	ActualCoverage    float64
	TargetCoverage    float64
	Tier              model.RunTier
	TotalExpected     int
	TotalObserved     int
	ErrorRate         float64
	AvgLatencyMS      float64
	CheckpointSuccess bool
}

// PortfolioMetrics is the subset of portfolio output MII consumes. A nil
// value falls back to neutral defaults.
type PortfolioMetrics struct {
	AvgPerformanceScore float64
	AvgReliability      float64
}

// Weights distributes the composite across the four dimensions, in order:
// coverage, quality, consistency, reliability.
type Weights struct {
	Coverage    float64
	Quality     float64
	Consistency float64
	Reliability float64
}

// DefaultWeights favors coverage slightly over the other dimensions.
func DefaultWeights() Weights {
	return Weights{Coverage: 0.30, Quality: 0.25, Consistency: 0.25, Reliability: 0.20}
}

const historyWindow = 6

// Calculator computes MII reports and tracks recent scores for trend
// analysis. Safe for concurrent use.
type Calculator struct {
	weights Weights

	mu      sync.Mutex
	history []float64

	nowFunc func() time.Time
}

// NewCalculator validates weights and returns a calculator.
func NewCalculator(w Weights) (*Calculator, error) {
	for _, v := range []float64{w.Coverage, w.Quality, w.Consistency, w.Reliability} {
		if v < 0 {
			return nil, eris.Errorf("mii: negative dimension weight %v", v)
		}
	}
	if w.Coverage+w.Quality+w.Consistency+w.Reliability <= 0 {
		return nil, eris.New("mii: dimension weights sum to zero")
	}
	return &Calculator{weights: w, nowFunc: time.Now}, nil
}

// Calculate produces a full MII report. portfolio may be nil, driftSignals
// and contractScores may be empty; defaults stand in for missing inputs.
func (c *Calculator) Calculate(stats RunStats, portfolio *PortfolioMetrics, driftSignals []float64, contractScores map[string]float64) Report {
	dims := []Dimension{
		coverageDimension(stats),
		qualityDimension(stats, portfolio),
		consistencyDimension(driftSignals, contractScores),
		reliabilityDimension(stats, portfolio),
	}

	score := c.composite(dims)
	report := Report{
		Score:           score,
		Health:          healthStatus(score),
		Dimensions:      dims,
		Trend:           c.trend(score),
		Insights:        insights(dims, score),
		Recommendations: recommendations(dims, score),
		Timestamp:       c.nowFunc().UTC(),
	}

	c.mu.Lock()
	c.history = append(c.history, score)
	if len(c.history) > historyWindow {
		c.history = c.history[len(c.history)-historyWindow:]
	}
	c.mu.Unlock()

	zap.L().Info("mii calculated",
		zap.Float64("score", report.Score),
		zap.String("health", string(report.Health)),
		zap.String("trend", string(report.Trend)),
	)
	return report
}

// History returns the retained recent scores, oldest first.
func (c *Calculator) History() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]float64, len(c.history))
	copy(out, c.history)
	return out
}

func coverageDimension(stats RunStats) Dimension {
	target := stats.TargetCoverage
	if target <= 0 {
		target = 0.95
	}
	ratio := math.Min(1, stats.ActualCoverage/target)

	tierValue := 0.3
	switch stats.Tier {
	case model.TierHealthy:
		tierValue = 1.0
	case model.TierDegraded:
		tierValue = 0.7
	}

	completion := 0.0
	if stats.TotalExpected > 0 {
		completion = float64(stats.TotalObserved) / float64(stats.TotalExpected)
	}

	components := []Component{
		{Name: "coverage_ratio", Weight: 0.5, Value: ratio, Confidence: 0.95},
		{Name: "tier_health", Weight: 0.3, Value: tierValue, Confidence: 1.0},
		{Name: "completion_rate", Weight: 0.2, Value: completion, Confidence: 0.9},
	}
	score := dimensionScore(components)

	trend := TrendDegrading
	switch {
	case score >= 90:
		trend = TrendImproving
	case score >= 70:
		trend = TrendStable
	}
	return Dimension{Name: "coverage", Score: score, Components: components, Trend: trend}
}

func qualityDimension(stats RunStats, portfolio *PortfolioMetrics) Dimension {
	perfScore := 0.5
	if portfolio != nil {
		perfScore = portfolio.AvgPerformanceScore / 100
	}

	quality := 1 - math.Min(1, stats.ErrorRate)

	latency := stats.AvgLatencyMS
	if latency <= 0 {
		latency = 1000
	}
	latencyScore := 1.0
	if latency >= 500 {
		latencyScore = (2000 - latency) / 1500
	}
	latencyScore = math.Max(0, math.Min(1, latencyScore))

	components := []Component{
		{Name: "model_performance", Weight: 0.4, Value: perfScore, Confidence: 0.85},
		{Name: "response_quality", Weight: 0.3, Value: quality, Confidence: 0.9},
		{Name: "latency_performance", Weight: 0.3, Value: latencyScore, Confidence: 0.95},
	}
	score := dimensionScore(components)

	trend := TrendStable
	switch {
	case score > 90:
		trend = TrendImproving
	case score < 70:
		trend = TrendDegrading
	}
	return Dimension{Name: "quality", Score: score, Components: components, Trend: trend}
}

func consistencyDimension(driftSignals []float64, contractScores map[string]float64) Dimension {
	driftStability := 0.8
	if len(driftSignals) > 0 {
		driftStability = 1 - math.Min(1, variance(driftSignals))
	}

	compliance := 0.7
	if len(contractScores) > 0 {
		sum := 0.0
		for _, v := range contractScores {
			sum += v
		}
		compliance = sum / float64(len(contractScores))
	}

	// Temporal consistency needs a longer time series than one run provides.
	temporal := 0.85

	components := []Component{
		{Name: "drift_stability", Weight: 0.4, Value: driftStability, Confidence: 0.8},
		{Name: "contract_compliance", Weight: 0.35, Value: compliance, Confidence: 0.9},
		{Name: "temporal_consistency", Weight: 0.25, Value: temporal, Confidence: 0.75},
	}
	score := dimensionScore(components)

	trend := TrendStable
	if driftStability <= 0.8 {
		trend = TrendDegrading
	}
	return Dimension{Name: "consistency", Score: score, Components: components, Trend: trend}
}

func reliabilityDimension(stats RunStats, portfolio *PortfolioMetrics) Dimension {
	// Uptime would come from external monitoring; assumed healthy here.
	uptime := 0.99

	reliability := 0.8
	if portfolio != nil {
		reliability = portfolio.AvgReliability
	}

	recovery := 0.5
	if stats.CheckpointSuccess {
		recovery = 1.0
	}

	components := []Component{
		{Name: "system_uptime", Weight: 0.3, Value: uptime, Confidence: 1.0},
		{Name: "model_reliability", Weight: 0.35, Value: reliability, Confidence: 0.9},
		{Name: "recovery_capability", Weight: 0.35, Value: recovery, Confidence: 0.95},
	}
	score := dimensionScore(components)

	trend := TrendDegrading
	switch {
	case score > 85:
		trend = TrendImproving
	case score > 70:
		trend = TrendStable
	}
	return Dimension{Name: "reliability", Score: score, Components: components, Trend: trend}
}

// composite squashes each dimension score, folds them into a weighted
// geometric mean, then scales by the mean component confidence.
func (c *Calculator) composite(dims []Dimension) float64 {
	weights := []float64{c.weights.Coverage, c.weights.Quality, c.weights.Consistency, c.weights.Reliability}

	weightSum := 0.0
	logSum := 0.0
	confidenceSum := 0.0
	for i, d := range dims {
		// Normalized so a perfect dimension squashes to 100, keeping the
		// composite on the same 0-100 scale as the health buckets.
		transformed := math.Tanh(d.Score/100) / math.Tanh(1) * 100
		logSum += weights[i] * math.Log(transformed+1)
		weightSum += weights[i]

		dimConfidence := 0.0
		for _, comp := range d.Components {
			dimConfidence += comp.Confidence
		}
		confidenceSum += dimConfidence / float64(len(d.Components))
	}

	geometricMean := math.Exp(logSum/weightSum) - 1
	confidence := confidenceSum / float64(len(dims))
	return round1(geometricMean * confidence)
}

// trend fits a line through the recent score window and reads the slope.
// Callers pass the score being produced now; history holds earlier ones.
func (c *Calculator) trend(current float64) Trend {
	c.mu.Lock()
	history := append(append([]float64{}, c.history...), current)
	c.mu.Unlock()

	if len(history) < 3 {
		return TrendStable
	}
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	slope := fitSlope(history)
	switch {
	case slope > 1:
		return TrendImproving
	case slope < -1:
		return TrendDegrading
	default:
		return TrendStable
	}
}

func healthStatus(score float64) HealthStatus {
	switch {
	case score >= 85:
		return HealthExcellent
	case score >= 70:
		return HealthGood
	case score >= 55:
		return HealthFair
	case score >= 40:
		return HealthPoor
	default:
		return HealthCritical
	}
}

func insights(dims []Dimension, score float64) []string {
	var out []string

	weakest := dims[0]
	for _, d := range dims[1:] {
		if d.Score < weakest.Score {
			weakest = d
		}
	}
	if weakest.Score < 70 {
		out = append(out, fmt.Sprintf("%s needs attention (score %.1f)", weakest.Name, weakest.Score))
	}

	degrading := 0
	for _, d := range dims {
		if d.Trend == TrendDegrading {
			degrading++
		}
	}
	if degrading > 0 {
		out = append(out, fmt.Sprintf("%d dimension(s) showing degradation", degrading))
	}

	minScore, maxScore := dims[0].Score, dims[0].Score
	for _, d := range dims[1:] {
		minScore = math.Min(minScore, d.Score)
		maxScore = math.Max(maxScore, d.Score)
	}
	if maxScore-minScore > 30 {
		out = append(out, "significant imbalance between dimensions")
	}

	excellent := 0
	for _, d := range dims {
		if d.Score >= 85 {
			excellent++
		}
	}
	if excellent > 0 {
		out = append(out, fmt.Sprintf("%d dimension(s) performing excellently", excellent))
	}

	if score < 50 {
		out = append(out, "system health is critical, immediate action required")
	} else if score > 80 {
		out = append(out, "system is performing at optimal levels")
	}
	return out
}

func recommendations(dims []Dimension, score float64) []string {
	byName := make(map[string]Dimension, len(dims))
	for _, d := range dims {
		byName[d.Name] = d
	}

	var out []string
	if d := byName["coverage"]; d.Score < 70 {
		out = append(out, "increase model availability or add fallback models")
	}
	if d := byName["quality"]; d.Score < 70 {
		out = append(out, "optimize model selection for better performance")
	}
	if d := byName["consistency"]; d.Score < 70 {
		out = append(out, "implement stricter contract validation")
	}
	if d := byName["reliability"]; d.Score < 70 {
		out = append(out, "enhance fault tolerance and recovery mechanisms")
	}

	if score < 60 {
		out = append([]string{"consider emergency response plan"}, out...)
	} else if score > 85 {
		out = append(out, "maintain current configuration, monitor for changes")
	}

	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

func dimensionScore(components []Component) float64 {
	sum := 0.0
	for _, c := range components {
		sum += c.Weight * c.Value * c.Confidence
	}
	return round1(sum * 100)
}

func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	v := 0.0
	for _, x := range xs {
		v += (x - mean) * (x - mean)
	}
	return v / float64(len(xs))
}

// fitSlope is the least-squares slope of ys against their indices.
func fitSlope(ys []float64) float64 {
	n := float64(len(ys))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
