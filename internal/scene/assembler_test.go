package scene

import (
	"strings"
	"testing"

	"github.com/quillworks/cento/internal/corpus"
)

func sampleScene() *Scene {
	return &Scene{
		Spec: Spec{Title: "The Reconciliation"},
		Speeches: []Speech{
			{
				Character: "Benedick",
				Fragments: []corpus.Fragment{
					{ID: "frag-a", Text: "I do love nothing in the world so well as you", Character: "Benedick", Play: "Much Ado About Nothing", Act: 4, Scene: 1},
					{ID: "frag-b", Text: "is not that strange?", Character: "Benedick", Play: "Much Ado About Nothing", Act: 4, Scene: 1},
				},
			},
			{Character: "Ghost"},
			{
				Character: "Beatrice",
				Fragments: []corpus.Fragment{
					{ID: "frag-c", Text: "I love you with so much of my heart", Character: "Beatrice", Play: "Much Ado About Nothing", Act: 4, Scene: 1},
				},
			},
		},
		QuotesUsed: 3,
	}
}

func TestAssemble(t *testing.T) {
	script := Assemble(sampleScene())

	if !strings.Contains(script, "The Reconciliation") {
		t.Error("title missing from script")
	}
	if !strings.Contains(script, "BENEDICK:") {
		t.Error("speaker label missing or not uppercased")
	}
	if !strings.Contains(script, "I do love nothing in the world so well as you is not that strange?") {
		t.Error("fragments not joined with single spaces")
	}
	if !strings.Contains(script, "Quotes used: 3") {
		t.Error("quote count line missing")
	}
}

func TestAssembleSkipsEmptySpeeches(t *testing.T) {
	script := Assemble(sampleScene())
	if strings.Contains(script, "GHOST") {
		t.Error("empty speech should not be rendered")
	}
}

func TestAssembleOrderPreserved(t *testing.T) {
	script := Assemble(sampleScene())
	benedick := strings.Index(script, "BENEDICK:")
	beatrice := strings.Index(script, "BEATRICE:")
	if benedick == -1 || beatrice == -1 || benedick > beatrice {
		t.Error("speeches rendered out of order")
	}
}

func TestFormatSceneBanner(t *testing.T) {
	s := sampleScene()
	s.Spec.Premise = "a quarrel turns to love"
	s.Spec.Characters = []Character{{Name: "Benedick"}, {Name: "Beatrice"}}
	s.Spec.Themes = []string{"love", "honor"}

	formatted := FormatScene(s)
	if !strings.Contains(formatted, "The Reconciliation") {
		t.Error("banner title missing")
	}
	if strings.Count(formatted, "The Reconciliation") != 1 {
		t.Error("title rendered twice")
	}
	if !strings.Contains(formatted, "Characters: Benedick, Beatrice") {
		t.Error("character roster missing")
	}
	if !strings.Contains(formatted, "Themes: love, honor") {
		t.Error("themes missing")
	}
	if !strings.Contains(formatted, "BENEDICK:") {
		t.Error("script body missing")
	}
}

func TestAttribution(t *testing.T) {
	attribution := Attribution(sampleScene())
	if !strings.Contains(attribution, "Much Ado About Nothing 4.1") {
		t.Errorf("expected play and act.scene citation, got %q", attribution)
	}
	if got := strings.Count(attribution, "\n"); got != 3 {
		t.Errorf("expected 3 attribution lines, got %d", got)
	}
}
