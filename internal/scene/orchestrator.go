package scene

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/quillworks/cento/internal/corpus"
	"github.com/quillworks/cento/internal/quote"
	"github.com/quillworks/cento/internal/session"
)

// Retriever is the retrieval surface the orchestrator drives. Satisfied by
// *quote.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, q quote.Query) ([]quote.Scored, error)
}

// Budgets bound how much work one scene may cost regardless of oracle
// behavior.
type Budgets struct {
	// MaxFragmentsPerSpeech caps accepted fragments per speech.
	MaxFragmentsPerSpeech int

	// MaxAttemptsPerSpeech caps retrieval queries per speech.
	MaxAttemptsPerSpeech int

	// MaxResultsPerQuery caps candidates per retrieval, whatever the
	// oracle asked for.
	MaxResultsPerQuery int
}

// DefaultBudgets returns the standard generation limits.
func DefaultBudgets() Budgets {
	return Budgets{
		MaxFragmentsPerSpeech: 4,
		MaxAttemptsPerSpeech:  6,
		MaxResultsPerQuery:    quote.DefaultMaxResults,
	}
}

// Orchestrator runs the speech state machine: it asks the oracle to plan,
// then realizes each planned speech through retrieve/judge rounds while
// enforcing budgets and the session-wide no-repeat rule. All creative
// judgment lives in the oracle; everything the orchestrator does is
// deterministic given the oracle's answers and the retriever's results.
type Orchestrator struct {
	oracle    Oracle
	retriever Retriever
	budgets   Budgets
}

// NewOrchestrator creates an orchestrator over the given oracle and
// retriever.
func NewOrchestrator(oracle Oracle, retriever Retriever, budgets Budgets) (*Orchestrator, error) {
	if oracle == nil {
		return nil, fmt.Errorf("oracle cannot be nil")
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever cannot be nil")
	}
	if budgets.MaxFragmentsPerSpeech <= 0 || budgets.MaxAttemptsPerSpeech <= 0 || budgets.MaxResultsPerQuery <= 0 {
		budgets = DefaultBudgets()
	}
	return &Orchestrator{oracle: oracle, retriever: retriever, budgets: budgets}, nil
}

// Generate produces a complete scene for the given request. Only planning
// failures and index unavailability abort the run; a speech the corpus
// cannot serve is left empty and generation moves on.
func (o *Orchestrator) Generate(ctx context.Context, spec Spec, sess *session.Session) (*Scene, error) {
	if len(spec.Characters) == 0 {
		return nil, fmt.Errorf("%w: no characters in scene request", ErrPlanningFailed)
	}
	if sess == nil {
		sess = session.New()
	}

	plan, err := o.oracle.PlanScene(ctx, spec)
	if err != nil {
		if errors.Is(err, ErrPlanningFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPlanningFailed, err)
	}
	if plan == nil || len(plan.Speeches) == 0 {
		return nil, fmt.Errorf("%w: plan contains no speeches", ErrPlanningFailed)
	}

	log.Info().
		Str("session", sess.ID()).
		Int("speeches", len(plan.Speeches)).
		Msg("scene planned")

	scene := &Scene{Spec: spec, Plan: *plan, SessionID: sess.ID()}
	for i, planned := range plan.Speeches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		speech, err := o.buildSpeech(ctx, i, planned, sess)
		if err != nil {
			return nil, err
		}
		scene.Speeches = append(scene.Speeches, *speech)
	}

	scene.QuotesUsed = sess.Count()
	return scene, nil
}

// buildSpeech runs the retrieve/judge loop for one planned speech.
func (o *Orchestrator) buildSpeech(ctx context.Context, index int, planned PlannedSpeech, sess *session.Session) (*Speech, error) {
	speech := &Speech{Character: planned.Character}
	sc := &SpeechContext{Index: index, Planned: planned}
	relaxedOnce := false

	for sc.Attempts < o.budgets.MaxAttemptsPerSpeech && len(speech.Fragments) < o.budgets.MaxFragmentsPerSpeech {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		q, err := o.oracle.NextQuery(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("speech %d: %w", index, err)
		}
		if q == nil {
			break
		}
		sc.Attempts++

		results, err := o.retrieve(ctx, *q, sess)
		if errors.Is(err, quote.ErrInvalidQuery) {
			// An oracle that builds a bad query loses the attempt, not
			// the scene.
			log.Warn().Err(err).Int("speech", index).Msg("dropping invalid query")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("speech %d: %w", index, err)
		}

		if len(results) == 0 {
			if len(speech.Fragments) > 0 {
				break
			}
			// One relaxed retry per speech; a second empty result marks
			// the speech failed-empty.
			if relaxedOnce {
				break
			}
			relaxedOnce = true
			results, err = o.retrieve(ctx, q.Relaxed(), sess)
			if err != nil {
				return nil, fmt.Errorf("speech %d: %w", index, err)
			}
			if len(results) == 0 {
				break
			}
		}

		verdict, err := o.oracle.Judge(ctx, sc, results)
		if err != nil {
			return nil, fmt.Errorf("speech %d: %w", index, err)
		}

		o.accept(verdict, results, speech, sc, sess, index)

		if !verdict.Continue {
			break
		}
	}

	if speech.Empty() {
		log.Warn().
			Int("speech", index).
			Str("character", planned.Character).
			Int("attempts", sc.Attempts).
			Msg("no fragments found for speech")
	}
	return speech, nil
}

// retrieve executes one query with the session's exclusion set and the
// per-query result cap imposed.
func (o *Orchestrator) retrieve(ctx context.Context, q quote.Query, sess *session.Session) ([]quote.Scored, error) {
	q.ExcludeIDs = sess.ExclusionList()
	if q.MaxResults <= 0 || q.MaxResults > o.budgets.MaxResultsPerQuery {
		q.MaxResults = o.budgets.MaxResultsPerQuery
	}
	return o.retriever.Retrieve(ctx, q)
}

// accept applies a verdict: each accepted id must name a fragment from this
// batch that neither this session nor this speech has consumed. Acceptance
// and session marking happen together so a later query can never see an
// accepted fragment again.
func (o *Orchestrator) accept(verdict *Verdict, results []quote.Scored, speech *Speech, sc *SpeechContext, sess *session.Session, index int) {
	byID := make(map[string]corpus.Fragment, len(results))
	for _, r := range results {
		byID[r.Fragment.ID] = r.Fragment
	}

	for _, id := range verdict.AcceptIDs {
		if len(speech.Fragments) >= o.budgets.MaxFragmentsPerSpeech {
			break
		}
		f, ok := byID[id]
		if !ok {
			log.Warn().Str("id", id).Int("speech", index).Msg("oracle accepted an id outside the batch")
			continue
		}
		if sess.IsUsed(id) {
			continue
		}
		speech.Fragments = append(speech.Fragments, f)
		sess.MarkUsed(id, speech.Character, index)
	}
	sc.Accepted = speech.Fragments
}
