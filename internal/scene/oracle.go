package scene

import (
	"context"

	"github.com/quillworks/cento/internal/corpus"
	"github.com/quillworks/cento/internal/quote"
)

// SpeechContext is the state the orchestrator exposes to the oracle while a
// speech is under construction.
type SpeechContext struct {
	// Index is the zero-based position of the speech in the plan.
	Index int

	// Planned is the plan entry being realized.
	Planned PlannedSpeech

	// Accepted holds the fragments accepted into this speech so far.
	Accepted []corpus.Fragment

	// Attempts counts retrieval queries issued for this speech so far.
	Attempts int
}

// Verdict is the oracle's judgment of one batch of retrieval results.
type Verdict struct {
	// AcceptIDs lists the fragment ids to append to the current speech, in
	// the order they should appear.
	AcceptIDs []string

	// Continue requests another retrieval round for the same speech.
	Continue bool
}

// Oracle makes the creative decisions the state machine itself does not:
// what the scene's speeches should be, what to search for, and which
// results to keep. Implementations see only the context passed in; the
// orchestrator owns all bookkeeping (budgets, exclusions, the no-repeat
// rule) so that any oracle, however erratic, yields a valid scene.
type Oracle interface {
	// PlanScene produces the ordered speech outline for a scene request.
	PlanScene(ctx context.Context, spec Spec) (*Plan, error)

	// NextQuery proposes the retrieval query for the next round of the
	// given speech, or nil to declare the speech complete. Exclusions and
	// result caps on the returned query are advisory; the orchestrator
	// overwrites them.
	NextQuery(ctx context.Context, sc *SpeechContext) (*quote.Query, error)

	// Judge reviews one batch of retrieval results for the given speech.
	// Results may be empty when filtering matched nothing.
	Judge(ctx context.Context, sc *SpeechContext, results []quote.Scored) (*Verdict, error)
}
