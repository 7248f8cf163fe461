package scene

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/quillworks/cento/internal/corpus"
	"github.com/quillworks/cento/internal/quote"
	"github.com/quillworks/cento/internal/session"
)

// mockRetriever implements Retriever with overridable behavior. The default
// serves from a fixed corpus, honoring the exclusion set the way the real
// retriever does.
type mockRetriever struct {
	retrieveFunc func(ctx context.Context, q quote.Query) ([]quote.Scored, error)
	corpus       []corpus.Fragment
	queries      []quote.Query
}

func (m *mockRetriever) Retrieve(ctx context.Context, q quote.Query) ([]quote.Scored, error) {
	m.queries = append(m.queries, q)
	if m.retrieveFunc != nil {
		return m.retrieveFunc(ctx, q)
	}

	excluded := make(map[string]bool, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		excluded[id] = true
	}
	var results []quote.Scored
	for i, f := range m.corpus {
		if excluded[f.ID] {
			continue
		}
		results = append(results, quote.Scored{Fragment: f, Score: 1 - float32(i)*0.01})
		if q.MaxResults > 0 && len(results) == q.MaxResults {
			break
		}
	}
	return results, nil
}

func fragmentCorpus(n int) []corpus.Fragment {
	fragments := make([]corpus.Fragment, n)
	for i := range fragments {
		fragments[i] = corpus.Fragment{
			ID:   fmt.Sprintf("frag-%02d", i),
			Text: fmt.Sprintf("line number %d", i),
		}
	}
	return fragments
}

func twoHanderSpec() Spec {
	return Spec{
		Premise: "two old rivals meet at a grave and reconcile",
		Characters: []Character{
			{Name: "Benedick"},
			{Name: "Beatrice"},
		},
		Speeches: 4,
	}
}

func fourSpeechPlan() *Plan {
	return &Plan{
		Summary: "accusation, defense, grief, reconciliation",
		Speeches: []PlannedSpeech{
			{Character: "Benedick", Intent: "accuse bitterly"},
			{Character: "Beatrice", Intent: "defend with scorn"},
			{Character: "Benedick", Intent: "soften into grief"},
			{Character: "Beatrice", Intent: "offer peace"},
		},
	}
}

func planOracle() *ScriptedOracle {
	return &ScriptedOracle{
		PlanFunc: func(ctx context.Context, spec Spec) (*Plan, error) {
			return fourSpeechPlan(), nil
		},
	}
}

func TestGenerateFollowsPlan(t *testing.T) {
	retriever := &mockRetriever{corpus: fragmentCorpus(40)}
	o, err := NewOrchestrator(planOracle(), retriever, DefaultBudgets())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	scene, err := o.Generate(context.Background(), twoHanderSpec(), session.New())
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}

	if len(scene.Speeches) != 4 {
		t.Fatalf("expected 4 speeches, got %d", len(scene.Speeches))
	}
	want := []string{"Benedick", "Beatrice", "Benedick", "Beatrice"}
	for i, speech := range scene.Speeches {
		if speech.Character != want[i] {
			t.Errorf("speech %d: expected %s, got %s", i, want[i], speech.Character)
		}
		if speech.Empty() {
			t.Errorf("speech %d came back empty with a full corpus", i)
		}
	}
	if scene.QuotesUsed == 0 {
		t.Error("expected a nonzero quote count")
	}
}

func TestGenerateNeverRepeatsAFragment(t *testing.T) {
	retriever := &mockRetriever{corpus: fragmentCorpus(40)}
	o, _ := NewOrchestrator(planOracle(), retriever, DefaultBudgets())

	scene, err := o.Generate(context.Background(), twoHanderSpec(), session.New())
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}

	seen := make(map[string]int)
	for i, speech := range scene.Speeches {
		for _, f := range speech.Fragments {
			if prev, ok := seen[f.ID]; ok {
				t.Errorf("fragment %s appears in speech %d and speech %d", f.ID, prev, i)
			}
			seen[f.ID] = i
		}
	}
	if len(seen) != scene.QuotesUsed {
		t.Errorf("quote count %d does not match distinct fragments %d", scene.QuotesUsed, len(seen))
	}
}

func TestGenerateOverwritesOracleExclusions(t *testing.T) {
	retriever := &mockRetriever{corpus: fragmentCorpus(40)}
	oracle := planOracle()
	oracle.NextQueryFunc = func(ctx context.Context, sc *SpeechContext) (*quote.Query, error) {
		if sc.Attempts > 0 {
			return nil, nil
		}
		// An oracle-supplied exclusion list must not survive.
		return &quote.Query{Text: sc.Planned.Intent, ExcludeIDs: []string{"bogus"}, MaxResults: 9999}, nil
	}
	o, _ := NewOrchestrator(oracle, retriever, DefaultBudgets())

	sess := session.New()
	if _, err := o.Generate(context.Background(), twoHanderSpec(), sess); err != nil {
		t.Fatalf("generation failed: %v", err)
	}

	for i, q := range retriever.queries {
		for _, id := range q.ExcludeIDs {
			if id == "bogus" {
				t.Errorf("query %d kept the oracle's exclusion list", i)
			}
		}
		if q.MaxResults > DefaultBudgets().MaxResultsPerQuery {
			t.Errorf("query %d exceeded the result cap: %d", i, q.MaxResults)
		}
	}
}

func TestGeneratePlanningFailureIsFatal(t *testing.T) {
	retriever := &mockRetriever{corpus: fragmentCorpus(10)}

	tests := []struct {
		name   string
		oracle *ScriptedOracle
	}{
		{
			"plan error",
			&ScriptedOracle{PlanFunc: func(ctx context.Context, spec Spec) (*Plan, error) {
				return nil, errors.New("model unreachable")
			}},
		},
		{
			"empty plan",
			&ScriptedOracle{PlanFunc: func(ctx context.Context, spec Spec) (*Plan, error) {
				return &Plan{}, nil
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := NewOrchestrator(tt.oracle, retriever, DefaultBudgets())
			_, err := o.Generate(context.Background(), twoHanderSpec(), session.New())
			if !errors.Is(err, ErrPlanningFailed) {
				t.Errorf("expected ErrPlanningFailed, got %v", err)
			}
		})
	}
}

func TestGenerateNoCharacters(t *testing.T) {
	o, _ := NewOrchestrator(&ScriptedOracle{}, &mockRetriever{}, DefaultBudgets())
	_, err := o.Generate(context.Background(), Spec{Premise: "an empty stage"}, session.New())
	if !errors.Is(err, ErrPlanningFailed) {
		t.Errorf("expected ErrPlanningFailed, got %v", err)
	}
}

func TestGenerateEmptySpeechDoesNotAbort(t *testing.T) {
	retriever := &mockRetriever{
		retrieveFunc: func(ctx context.Context, q quote.Query) ([]quote.Scored, error) {
			return nil, nil
		},
	}
	o, _ := NewOrchestrator(planOracle(), retriever, DefaultBudgets())

	scene, err := o.Generate(context.Background(), twoHanderSpec(), session.New())
	if err != nil {
		t.Fatalf("expected generation to continue past empty speeches: %v", err)
	}
	if len(scene.Speeches) != 4 {
		t.Fatalf("expected 4 speeches, got %d", len(scene.Speeches))
	}
	for i, speech := range scene.Speeches {
		if !speech.Empty() {
			t.Errorf("speech %d should be empty", i)
		}
	}
	if scene.QuotesUsed != 0 {
		t.Errorf("expected zero quotes used, got %d", scene.QuotesUsed)
	}
}

func TestGenerateRelaxedRetryOnEmptyResults(t *testing.T) {
	// Filtered queries match nothing; only the relaxed retry succeeds.
	pool := fragmentCorpus(10)
	retriever := &mockRetriever{
		retrieveFunc: func(ctx context.Context, q quote.Query) ([]quote.Scored, error) {
			if len(q.Tones) > 0 {
				return nil, nil
			}
			return []quote.Scored{{Fragment: pool[0], Score: 0.9}}, nil
		},
	}
	oracle := &ScriptedOracle{
		PlanFunc: func(ctx context.Context, spec Spec) (*Plan, error) {
			return &Plan{Speeches: []PlannedSpeech{{Character: "Benedick", Intent: "rage"}}}, nil
		},
		NextQueryFunc: func(ctx context.Context, sc *SpeechContext) (*quote.Query, error) {
			if sc.Attempts > 0 {
				return nil, nil
			}
			return &quote.Query{Text: "rage", Tones: []string{"angry"}}, nil
		},
	}
	o, _ := NewOrchestrator(oracle, retriever, DefaultBudgets())

	scene, err := o.Generate(context.Background(), twoHanderSpec(), session.New())
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}
	if scene.Speeches[0].Empty() {
		t.Fatal("relaxed retry should have filled the speech")
	}
	if len(retriever.queries) != 2 {
		t.Fatalf("expected 2 retrievals (filtered then relaxed), got %d", len(retriever.queries))
	}
	if len(retriever.queries[1].Tones) != 0 {
		t.Errorf("second retrieval should be relaxed, got %+v", retriever.queries[1])
	}
	if retriever.queries[1].Text != "rage" {
		t.Errorf("relaxed retrieval lost the semantic text: %q", retriever.queries[1].Text)
	}
}

func TestGenerateFailedEmptyAfterRelaxedRetry(t *testing.T) {
	// Nothing in the corpus matches; however insistent the oracle is, the
	// speech gets the filtered query plus one relaxed retry and no more.
	retriever := &mockRetriever{
		retrieveFunc: func(ctx context.Context, q quote.Query) ([]quote.Scored, error) {
			return nil, nil
		},
	}
	oracle := &ScriptedOracle{
		PlanFunc: func(ctx context.Context, spec Spec) (*Plan, error) {
			return &Plan{Speeches: []PlannedSpeech{{Character: "Benedick", Intent: "rage"}}}, nil
		},
		NextQueryFunc: func(ctx context.Context, sc *SpeechContext) (*quote.Query, error) {
			return &quote.Query{Text: "rage", Tones: []string{"angry"}}, nil
		},
	}
	o, _ := NewOrchestrator(oracle, retriever, DefaultBudgets())

	scene, err := o.Generate(context.Background(), twoHanderSpec(), session.New())
	if err != nil {
		t.Fatalf("a failed-empty speech should not abort generation: %v", err)
	}
	if !scene.Speeches[0].Empty() {
		t.Error("expected an empty speech")
	}
	if len(retriever.queries) != 2 {
		t.Errorf("expected exactly 2 retrievals (filtered then relaxed), got %d", len(retriever.queries))
	}
}

func TestGenerateInvalidQueryLosesAttemptOnly(t *testing.T) {
	pool := fragmentCorpus(10)
	retriever := &mockRetriever{
		retrieveFunc: func(ctx context.Context, q quote.Query) ([]quote.Scored, error) {
			if q.Text == "" {
				return nil, fmt.Errorf("%w: empty text", quote.ErrInvalidQuery)
			}
			return []quote.Scored{{Fragment: pool[0], Score: 0.9}}, nil
		},
	}
	oracle := &ScriptedOracle{
		PlanFunc: func(ctx context.Context, spec Spec) (*Plan, error) {
			return &Plan{Speeches: []PlannedSpeech{{Character: "Benedick", Intent: "rage"}}}, nil
		},
		NextQueryFunc: func(ctx context.Context, sc *SpeechContext) (*quote.Query, error) {
			switch sc.Attempts {
			case 0:
				return &quote.Query{}, nil // malformed
			case 1:
				return &quote.Query{Text: "rage"}, nil
			default:
				return nil, nil
			}
		},
	}
	o, _ := NewOrchestrator(oracle, retriever, DefaultBudgets())

	scene, err := o.Generate(context.Background(), twoHanderSpec(), session.New())
	if err != nil {
		t.Fatalf("an invalid query should not abort generation: %v", err)
	}
	if scene.Speeches[0].Empty() {
		t.Error("the follow-up query should have filled the speech")
	}
}

func TestGenerateIndexUnavailableAborts(t *testing.T) {
	retriever := &mockRetriever{
		retrieveFunc: func(ctx context.Context, q quote.Query) ([]quote.Scored, error) {
			return nil, fmt.Errorf("%w: connection refused", quote.ErrIndexUnavailable)
		},
	}
	o, _ := NewOrchestrator(planOracle(), retriever, DefaultBudgets())

	_, err := o.Generate(context.Background(), twoHanderSpec(), session.New())
	if !errors.Is(err, quote.ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestGenerateRespectsBudgets(t *testing.T) {
	budgets := Budgets{MaxFragmentsPerSpeech: 2, MaxAttemptsPerSpeech: 3, MaxResultsPerQuery: 5}
	retriever := &mockRetriever{corpus: fragmentCorpus(100)}

	// A greedy oracle that always wants more.
	oracle := planOracle()
	oracle.NextQueryFunc = func(ctx context.Context, sc *SpeechContext) (*quote.Query, error) {
		return &quote.Query{Text: "more"}, nil
	}
	oracle.JudgeFunc = func(ctx context.Context, sc *SpeechContext, results []quote.Scored) (*Verdict, error) {
		ids := make([]string, len(results))
		for i, r := range results {
			ids[i] = r.Fragment.ID
		}
		return &Verdict{AcceptIDs: ids, Continue: true}, nil
	}

	o, _ := NewOrchestrator(oracle, retriever, budgets)
	scene, err := o.Generate(context.Background(), twoHanderSpec(), session.New())
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}
	for i, speech := range scene.Speeches {
		if len(speech.Fragments) > budgets.MaxFragmentsPerSpeech {
			t.Errorf("speech %d exceeded fragment budget: %d", i, len(speech.Fragments))
		}
	}
	maxQueries := len(scene.Speeches) * budgets.MaxAttemptsPerSpeech
	if len(retriever.queries) > maxQueries {
		t.Errorf("issued %d queries, budget allows %d", len(retriever.queries), maxQueries)
	}
}

func TestGenerateIgnoresAcceptsOutsideBatch(t *testing.T) {
	retriever := &mockRetriever{corpus: fragmentCorpus(10)}
	oracle := planOracle()
	oracle.JudgeFunc = func(ctx context.Context, sc *SpeechContext, results []quote.Scored) (*Verdict, error) {
		return &Verdict{AcceptIDs: []string{"frag-hallucinated", results[0].Fragment.ID}, Continue: false}, nil
	}
	o, _ := NewOrchestrator(oracle, retriever, DefaultBudgets())

	scene, err := o.Generate(context.Background(), twoHanderSpec(), session.New())
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}
	for i, speech := range scene.Speeches {
		for _, f := range speech.Fragments {
			if f.ID == "frag-hallucinated" {
				t.Errorf("speech %d accepted an id outside the result batch", i)
			}
		}
	}
}

func TestGenerateAndAssembleFourSpeeches(t *testing.T) {
	retriever := &mockRetriever{corpus: fragmentCorpus(40)}
	o, _ := NewOrchestrator(planOracle(), retriever, DefaultBudgets())

	scene, err := o.Generate(context.Background(), twoHanderSpec(), session.New())
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}

	script := Assemble(scene)
	benedick := strings.Count(script, "BENEDICK:")
	beatrice := strings.Count(script, "BEATRICE:")
	if benedick+beatrice != 4 {
		t.Errorf("expected 4 speaker labels, got %d + %d:\n%s", benedick, beatrice, script)
	}
	if benedick != 2 || beatrice != 2 {
		t.Errorf("expected 2 labels per character, got %d and %d", benedick, beatrice)
	}
}

func TestGenerateCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	retriever := &mockRetriever{corpus: fragmentCorpus(10)}
	o, _ := NewOrchestrator(planOracle(), retriever, DefaultBudgets())

	_, err := o.Generate(ctx, twoHanderSpec(), session.New())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
