// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evolution

import (
	"fmt"
	"math"
	"sort"

	"github.com/vexlabs/vex/internal/genome"
)

const (
	// minCorrelation is the candidate bar: |ρ| ≥ 0.3.
	minCorrelation = 0.3
	// minSampleSize is the candidate bar: n ≥ 30.
	minSampleSize = 30
	// ruleDeltaFraction scales the trait nudge a rule applies: 10% of the
	// trait's range, signed by the correlation direction.
	ruleDeltaFraction = 0.1
)

// Pearson computes the Pearson correlation coefficient between xs and ys.
// Degenerate inputs (mismatched lengths, fewer than two points, zero
// variance in either series) return 0.
func Pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n != len(ys) || n < 2 {
		return 0
	}
	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/float64(n), sumY/float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

// Candidate is a statistically generated rule awaiting reflective
// refinement.
type Candidate struct {
	Trait       string
	TaskClass   string
	Correlation float64
	SampleSize  int
}

// Description renders the candidate as the natural-language rule the
// reflective stage refines.
func (c Candidate) Description() string {
	direction := "increase"
	if c.Correlation < 0 {
		direction = "decrease"
	}
	return fmt.Sprintf("%s %s for tasks of class %q (ρ=%.2f over %d experiments)",
		direction, c.Trait, c.TaskClass, c.Correlation, c.SampleSize)
}

// Confidence derives the candidate's confidence from correlation magnitude
// damped by sample size: full trust only past ~100 samples.
func (c Candidate) Confidence() float64 {
	sizeFactor := float64(c.SampleSize) / 100.0
	if sizeFactor > 1 {
		sizeFactor = 1
	}
	return math.Abs(c.Correlation) * sizeFactor
}

// Adjustment converts the candidate into the bounded trait nudge applied
// at agent spawn.
func (c Candidate) Adjustment() genome.Adjustment {
	r := genome.Ranges[c.Trait]
	delta := ruleDeltaFraction * r.Width()
	if c.Correlation < 0 {
		delta = -delta
	}
	return genome.Adjustment{Trait: c.Trait, Delta: delta}
}

// GenerateCandidates runs the statistical stage: per task class, Pearson
// correlation between each trait's value and overall fitness; candidates
// where |ρ| ≥ 0.3 with n ≥ 30.
func GenerateCandidates(records []ExperimentRecord) []Candidate {
	byClass := make(map[string][]ExperimentRecord)
	for _, rec := range records {
		byClass[rec.TaskClass] = append(byClass[rec.TaskClass], rec)
	}

	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	var candidates []Candidate
	for _, class := range classes {
		group := byClass[class]
		if len(group) < minSampleSize {
			continue
		}
		fitness := make([]float64, len(group))
		for i, rec := range group {
			fitness[i] = rec.OverallFitness
		}
		for _, trait := range genome.TraitNames {
			values := make([]float64, len(group))
			for i, rec := range group {
				values[i] = rec.Traits[trait]
			}
			rho := Pearson(values, fitness)
			if math.Abs(rho) < minCorrelation {
				continue
			}
			candidates = append(candidates, Candidate{
				Trait:       trait,
				TaskClass:   class,
				Correlation: rho,
				SampleSize:  len(group),
			})
		}
	}
	return candidates
}
