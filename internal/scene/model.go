// Package scene implements the speech orchestration state machine: an
// external oracle plans the scene and drives retrieval, the orchestrator
// enforces budgets and the no-repeat rule, and the assembler renders the
// final script.
package scene

import (
	"errors"

	"github.com/quillworks/cento/internal/corpus"
)

// Common errors for scene generation.
var (
	// ErrPlanningFailed marks an unusable scene plan. Generation cannot
	// proceed without a plan, so this aborts the run.
	ErrPlanningFailed = errors.New("scene planning failed")

	// ErrOracleFailed marks a decision-oracle call that did not produce a
	// usable answer.
	ErrOracleFailed = errors.New("oracle call failed")
)

// Character describes one speaker in a scene request.
type Character struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Spec is the user-facing scene request, typically loaded from a YAML file.
type Spec struct {
	Title      string      `yaml:"title,omitempty" json:"title,omitempty"`
	Premise    string      `yaml:"premise" json:"premise"`
	Characters []Character `yaml:"characters" json:"characters"`
	Themes     []string    `yaml:"themes,omitempty" json:"themes,omitempty"`
	Speeches   int         `yaml:"speeches,omitempty" json:"speeches,omitempty"`
}

// PlannedSpeech is one beat of the oracle's scene plan: who speaks and what
// the speech should accomplish.
type PlannedSpeech struct {
	Character string   `json:"character"`
	Intent    string   `json:"intent"`
	Tones     []string `json:"emotional_tone,omitempty"`
	Themes    []string `json:"themes,omitempty"`
}

// Plan is the ordered speech outline the oracle commits to before any
// retrieval happens.
type Plan struct {
	Summary  string          `json:"summary,omitempty"`
	Speeches []PlannedSpeech `json:"speeches"`
}

// Speech is one realized speech: a character and the fragments assembled
// into their lines, in acceptance order.
type Speech struct {
	Character string            `json:"character"`
	Fragments []corpus.Fragment `json:"fragments"`
}

// Empty reports whether no fragments were accepted for this speech.
func (s Speech) Empty() bool {
	return len(s.Fragments) == 0
}

// Scene is the complete generation result.
type Scene struct {
	Spec       Spec     `json:"spec"`
	Plan       Plan     `json:"plan"`
	Speeches   []Speech `json:"speeches"`
	QuotesUsed int      `json:"quotes_used"`
	SessionID  string   `json:"session_id"`
}
