// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"math"
	"time"
)

// DecayStrategy is the closed set of age-decay functions a deployment can
// select. The strategy is chosen per deployment, not per episode.
type DecayStrategy int

const (
	// DecayExponential halves survivability per horizon-scaled half-life.
	DecayExponential DecayStrategy = iota
	// DecayLinear falls to zero across the episode's horizon window.
	DecayLinear
	// DecayStep drops by half each horizon boundary the age has crossed.
	DecayStep
	// DecayNone disables age decay; score is importance times reinforcement.
	DecayNone
)

func (s DecayStrategy) String() string {
	switch s {
	case DecayExponential:
		return "exponential"
	case DecayLinear:
		return "linear"
	case DecayStep:
		return "step"
	case DecayNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseDecayStrategy maps a configuration string to a strategy; unknown
// values fall back to exponential, the documented default.
func ParseDecayStrategy(s string) DecayStrategy {
	switch s {
	case "linear":
		return DecayLinear
	case "step":
		return DecayStep
	case "none":
		return DecayNone
	default:
		return DecayExponential
	}
}

// decayFactor computes the [0,1] age multiplier for an episode currently in
// horizon h. Permanent episodes never decay by age under any strategy.
func (s DecayStrategy) decayFactor(age time.Duration, h Horizon) float64 {
	window := h.Window()
	if window == 0 {
		return 1.0
	}
	switch s {
	case DecayNone:
		return 1.0
	case DecayLinear:
		f := 1.0 - float64(age)/float64(window)
		if f < 0 {
			return 0
		}
		return f
	case DecayStep:
		// Half the score per horizon boundary the age has crossed.
		crossed := 0
		for _, hh := range AllHorizons {
			w := hh.Window()
			if w != 0 && age > w {
				crossed++
			}
		}
		return math.Pow(0.5, float64(crossed))
	default:
		// Exponential with λ scaled so one full window costs ~e⁻¹.
		return math.Exp(-float64(age) / float64(window))
	}
}

// reinforcement raises survivability with every recall: 1 + ln(1 + accesses).
func reinforcement(accessCount int) float64 {
	return 1 + math.Log(1+float64(accessCount))
}

// Score computes an episode's current importance score at time now:
// importance · decay(age) · reinforcement(access_count).
func (s DecayStrategy) Score(e *Episode, now time.Time) float64 {
	age := now.Sub(time.UnixMilli(e.TimestampMs))
	if age < 0 {
		age = 0
	}
	return e.Importance * s.decayFactor(age, e.Horizon) * reinforcement(e.AccessCount)
}
