// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package genome implements C4: agents as a bounded five-trait behavioral
// vector, with crossover, mutation, rule application, and tournament
// selection. Every trait stays within its documented range after any
// operation (clamp-on-write).
package genome

// Trait names. The set is closed; operations given an unknown name ignore
// it (Set does nothing, Get reports ok=false, adjustments skip it).
const (
	TraitExploration = "exploration"
	TraitPrecision   = "precision"
	TraitCreativity  = "creativity"
	TraitSkepticism  = "skepticism"
	TraitVerbosity   = "verbosity"
)

// TraitNames lists the five traits in their canonical order.
var TraitNames = []string{
	TraitExploration,
	TraitPrecision,
	TraitCreativity,
	TraitSkepticism,
	TraitVerbosity,
}

// Range bounds one trait.
type Range struct {
	Min float64
	Max float64
}

// Width returns Max - Min, the scale used for mutation noise.
func (r Range) Width() float64 { return r.Max - r.Min }

// Clamp forces v into [Min, Max].
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Ranges maps each trait to its documented bounds.
var Ranges = map[string]Range{
	TraitExploration: {Min: 0.1, Max: 1.5},
	TraitPrecision:   {Min: 0.5, Max: 1.0},
	TraitCreativity:  {Min: 0.0, Max: 1.0},
	TraitSkepticism:  {Min: 0.0, Max: 0.5},
	TraitVerbosity:   {Min: 0.5, Max: 2.0},
}

// Genome is the five-trait behavioral vector of an agent. Each trait drives
// one LLM sampling knob (see SamplingParams).
type Genome struct {
	Exploration float64 `json:"exploration"`
	Precision   float64 `json:"precision"`
	Creativity  float64 `json:"creativity"`
	Skepticism  float64 `json:"skepticism"`
	Verbosity   float64 `json:"verbosity"`
}

// Default returns the midpoint genome: each trait at the center of its range.
func Default() Genome {
	g := Genome{}
	for _, name := range TraitNames {
		r := Ranges[name]
		g.Set(name, r.Min+r.Width()/2)
	}
	return g
}

// Get returns the named trait's value; ok is false for unknown names.
func (g Genome) Get(name string) (float64, bool) {
	switch name {
	case TraitExploration:
		return g.Exploration, true
	case TraitPrecision:
		return g.Precision, true
	case TraitCreativity:
		return g.Creativity, true
	case TraitSkepticism:
		return g.Skepticism, true
	case TraitVerbosity:
		return g.Verbosity, true
	}
	return 0, false
}

// Set writes the named trait, clamping to its range. Unknown names are a
// no-op so a stale rule referencing a removed trait cannot corrupt a genome.
func (g *Genome) Set(name string, value float64) {
	r, ok := Ranges[name]
	if !ok {
		return
	}
	v := r.Clamp(value)
	switch name {
	case TraitExploration:
		g.Exploration = v
	case TraitPrecision:
		g.Precision = v
	case TraitCreativity:
		g.Creativity = v
	case TraitSkepticism:
		g.Skepticism = v
	case TraitVerbosity:
		g.Verbosity = v
	}
}

// Traits returns the genome as a name→value map, the snapshot shape stored
// on experiment records.
func (g Genome) Traits() map[string]float64 {
	return map[string]float64{
		TraitExploration: g.Exploration,
		TraitPrecision:   g.Precision,
		TraitCreativity:  g.Creativity,
		TraitSkepticism:  g.Skepticism,
		TraitVerbosity:   g.Verbosity,
	}
}

// Clamped returns a copy with every trait forced into its range. Loading a
// genome from storage goes through this so hand-edited rows cannot violate
// the bounds invariant.
func (g Genome) Clamped() Genome {
	out := g
	for _, name := range TraitNames {
		v, _ := g.Get(name)
		out.Set(name, v)
	}
	return out
}

// SamplingParams are the LLM sampling knobs derived from a genome:
// exploration → temperature, precision → top-p, creativity → presence
// penalty, skepticism → frequency penalty, verbosity → max-tokens
// multiplier.
type SamplingParams struct {
	Temperature         float64 `json:"temperature"`
	TopP                float64 `json:"top_p"`
	PresencePenalty     float64 `json:"presence_penalty"`
	FrequencyPenalty    float64 `json:"frequency_penalty"`
	MaxTokensMultiplier float64 `json:"max_tokens_multiplier"`
}

// Sampling maps the genome onto sampling parameters. The trait ranges are
// already the parameter ranges, so this is a direct read.
func (g Genome) Sampling() SamplingParams {
	return SamplingParams{
		Temperature:         g.Exploration,
		TopP:                g.Precision,
		PresencePenalty:     g.Creativity,
		FrequencyPenalty:    g.Skepticism,
		MaxTokensMultiplier: g.Verbosity,
	}
}

// MaxTokens applies the verbosity multiplier to a base token budget.
func (p SamplingParams) MaxTokens(base int) int {
	return int(float64(base) * p.MaxTokensMultiplier)
}
