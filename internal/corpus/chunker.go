package corpus

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var (
	actRE        = regexp.MustCompile(`ACT\s+[IVX]+|Act\s+\d+`)
	sceneRE      = regexp.MustCompile(`SCENE\s+[IVX]+|Scene\s+\d+`)
	speakerRE    = regexp.MustCompile(`^([A-Z][A-Z\s]+)[\.\:]`)
	titleRE      = regexp.MustCompile(`\b(LORD|LADY|SIR|KING|QUEEN|PRINCE|PRINCESS|DUKE|DUCHESS)\b\s*`)
	whitespaceRE = regexp.MustCompile(`\s+`)
	sentenceRE   = regexp.MustCompile(`[.!?]+`)
	phraseRE     = regexp.MustCompile(`[.!?;]`)
)

// Fragments shorter than this many words carry too little meaning to index.
const minChunkWords = 3

// fragment windows are tried widest-first so longer spans win their hash slot.
var fragmentWindows = []int{8, 6, 5, 4, 3}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true,
	"was": true, "are": true, "were": true,
}

// Chunker splits raw play text into annotated fragments at one or more
// granularities.
type Chunker struct {
	// Granularities selects which chunk sizes to emit. Empty means all three.
	Granularities []Granularity
}

// ChunkPlay parses a play's structure (acts, scenes, speeches) and emits
// fragments at every requested granularity, each fully annotated.
func (c *Chunker) ChunkPlay(playText, playTitle string) []Fragment {
	granularities := c.Granularities
	if len(granularities) == 0 {
		granularities = []Granularity{GranularityFullLine, GranularityPhrase, GranularityFragment}
	}

	var fragments []Fragment

	for actNum, actText := range splitSections(playText, actRE, 100) {
		for sceneNum, sceneText := range splitSections(actText, sceneRE, 50) {
			speeches := parseSpeeches(sceneText)
			delivery := deliveryFor(speeches)

			for _, sp := range speeches {
				for _, g := range granularities {
					var texts []string
					switch g {
					case GranularityFullLine:
						texts = splitLines(sp.text)
					case GranularityPhrase:
						texts = splitPhrases(sp.text)
					case GranularityFragment:
						texts = slideFragments(sp.text)
					}

					for _, text := range texts {
						text = CleanText(text)
						if len(strings.Fields(text)) < minChunkWords {
							continue
						}
						f := Fragment{
							ID:          FragmentID(text, playTitle, sp.character),
							Text:        text,
							Granularity: g,
							Play:        playTitle,
							Act:         actNum + 1,
							Scene:       sceneNum + 1,
							Character:   sp.character,
							Delivery:    delivery,
						}
						Annotate(&f)
						fragments = append(fragments, f)
					}
				}
			}
		}
	}

	return fragments
}

type speech struct {
	character string
	text      string
}

// splitSections splits on a structural marker, dropping sections shorter
// than minLen. Falls back to the whole text when no markers are found.
func splitSections(text string, marker *regexp.Regexp, minLen int) []string {
	parts := marker.Split(text, -1)
	sections := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) > minLen {
			sections = append(sections, p)
		}
	}
	if len(sections) == 0 {
		return []string{text}
	}
	return sections
}

// parseSpeeches walks scene lines, treating ALL-CAPS prefixed lines as
// speaker markers and accumulating the lines that follow into one speech.
func parseSpeeches(sceneText string) []speech {
	var speeches []speech

	var current string
	var lines []string

	flush := func() {
		if current != "" && len(lines) > 0 {
			speeches = append(speeches, speech{character: current, text: strings.Join(lines, " ")})
		}
		lines = nil
	}

	for _, line := range strings.Split(sceneText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if name := extractSpeaker(line); name != "" {
			flush()
			current = normalizeCharacter(name)
			continue
		}
		if current != "" {
			lines = append(lines, line)
		}
	}
	flush()

	return speeches
}

// deliveryFor marks a scene with a single speaker as soliloquy.
func deliveryFor(speeches []speech) Delivery {
	seen := map[string]bool{}
	for _, sp := range speeches {
		seen[sp.character] = true
	}
	if len(seen) == 1 {
		return DeliverySoliloquy
	}
	return DeliveryDialogue
}

func splitLines(text string) []string {
	var lines []string
	if strings.Contains(text, "\n") {
		lines = strings.Split(text, "\n")
	} else {
		lines = sentenceRE.Split(text, -1)
	}

	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func splitPhrases(text string) []string {
	parts := phraseRE.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// slideFragments emits every 3-8 word window that contains at least one
// non-stop word.
func slideFragments(text string) []string {
	words := strings.Fields(text)
	var out []string

	for _, size := range fragmentWindows {
		for i := 0; i+size <= len(words); i++ {
			fragment := strings.Join(words[i:i+size], " ")
			if meaningful(fragment) {
				out = append(out, fragment)
			}
		}
	}
	return out
}

func meaningful(fragment string) bool {
	for _, w := range strings.Fields(strings.ToLower(fragment)) {
		if !stopWords[w] {
			return true
		}
	}
	return false
}

func extractSpeaker(line string) string {
	m := speakerRE.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func normalizeCharacter(name string) string {
	name = titleRE.ReplaceAllString(name, "")
	words := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// CleanText collapses whitespace runs and trims the result.
func CleanText(text string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(text, " "))
}

// FragmentID derives a stable content-hash identifier. The same text spoken
// by the same character in the same play always maps to the same id, which
// is what lets sessions survive re-indexing.
func FragmentID(text, play, character string) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s:%s:%s", play, character, text)))
	return hex.EncodeToString(sum[:])
}
