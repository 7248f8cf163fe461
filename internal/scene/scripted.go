package scene

import (
	"context"

	"github.com/quillworks/cento/internal/quote"
)

// ScriptedOracle is a deterministic Oracle for testing and offline runs.
// Each decision can be overridden with a function field; unset fields fall
// back to a simple greedy strategy: one speech per character, one query per
// speech built from the planned intent, accept everything returned.
type ScriptedOracle struct {
	PlanFunc      func(ctx context.Context, spec Spec) (*Plan, error)
	NextQueryFunc func(ctx context.Context, sc *SpeechContext) (*quote.Query, error)
	JudgeFunc     func(ctx context.Context, sc *SpeechContext, results []quote.Scored) (*Verdict, error)
}

// PlanScene returns the scripted plan, or one speech per character carrying
// the scene premise as intent.
func (s *ScriptedOracle) PlanScene(ctx context.Context, spec Spec) (*Plan, error) {
	if s.PlanFunc != nil {
		return s.PlanFunc(ctx, spec)
	}
	speeches := make([]PlannedSpeech, len(spec.Characters))
	for i, c := range spec.Characters {
		speeches[i] = PlannedSpeech{Character: c.Name, Intent: spec.Premise}
	}
	return &Plan{Summary: spec.Premise, Speeches: speeches}, nil
}

// NextQuery returns the scripted query, or one intent-derived query per
// speech and nil afterwards.
func (s *ScriptedOracle) NextQuery(ctx context.Context, sc *SpeechContext) (*quote.Query, error) {
	if s.NextQueryFunc != nil {
		return s.NextQueryFunc(ctx, sc)
	}
	if sc.Attempts > 0 {
		return nil, nil
	}
	return &quote.Query{
		Text:   sc.Planned.Intent,
		Tones:  sc.Planned.Tones,
		Themes: sc.Planned.Themes,
	}, nil
}

// Judge returns the scripted verdict, or accepts every result and stops.
func (s *ScriptedOracle) Judge(ctx context.Context, sc *SpeechContext, results []quote.Scored) (*Verdict, error) {
	if s.JudgeFunc != nil {
		return s.JudgeFunc(ctx, sc, results)
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Fragment.ID
	}
	return &Verdict{AcceptIDs: ids, Continue: false}, nil
}
