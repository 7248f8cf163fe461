package scene

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a dramaturg assembling a scene entirely from
pre-existing Shakespeare fragments. You never write new text: every line a
character speaks must come verbatim from the fragment corpus.

To find fragments, call the get_quote tool with a semantic query and any
filters that fit the moment. After each batch of results, reply with a JSON
object of the form {"accept_ids": ["..."], "continue": true} naming the
fragment ids to add to the current speech, in speaking order, and whether you
want to search again for this speech. Accept only fragments that genuinely
fit the speaker and the moment; an empty accept list is fine.

When asked for the next search and the speech already says what it needs to
say, reply with the single word DONE.`

// planPrompt asks for the scene outline as strict JSON.
func planPrompt(spec Spec) string {
	var b strings.Builder
	b.WriteString("Plan a short dramatic scene built from Shakespeare fragments.\n\n")
	if spec.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", spec.Title)
	}
	fmt.Fprintf(&b, "Premise: %s\n\nCharacters:\n", spec.Premise)
	for _, c := range spec.Characters {
		if c.Description != "" {
			fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
		} else {
			fmt.Fprintf(&b, "- %s\n", c.Name)
		}
	}
	if len(spec.Themes) > 0 {
		fmt.Fprintf(&b, "\nThemes to weave through: %s\n", strings.Join(spec.Themes, ", "))
	}
	speeches := spec.Speeches
	if speeches <= 0 {
		speeches = 2 * len(spec.Characters)
	}
	fmt.Fprintf(&b, `
Respond with JSON only, no prose, in this shape:
{
  "summary": "one sentence on the scene's arc",
  "speeches": [
    {
      "character": "name from the character list",
      "intent": "what this speech accomplishes",
      "emotional_tone": ["tone", "..."],
      "themes": ["theme", "..."]
    }
  ]
}
Plan exactly %d speeches, alternating speakers naturally.`, speeches)
	return b.String()
}

// speechBrief opens the per-speech conversation.
func speechBrief(spec Spec, plan *Plan, sc *SpeechContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scene premise: %s\n", spec.Premise)
	if plan.Summary != "" {
		fmt.Fprintf(&b, "Scene arc: %s\n", plan.Summary)
	}
	fmt.Fprintf(&b, "\nYou are now assembling speech %d of %d, spoken by %s.\n",
		sc.Index+1, len(plan.Speeches), sc.Planned.Character)
	fmt.Fprintf(&b, "Intent: %s\n", sc.Planned.Intent)
	if len(sc.Planned.Tones) > 0 {
		fmt.Fprintf(&b, "Suggested tones: %s\n", strings.Join(sc.Planned.Tones, ", "))
	}
	if len(sc.Planned.Themes) > 0 {
		fmt.Fprintf(&b, "Suggested themes: %s\n", strings.Join(sc.Planned.Themes, ", "))
	}
	b.WriteString("\nSearch for fragments with get_quote.")
	return b.String()
}

// stripFences removes a markdown code fence if the model wrapped its JSON in
// one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
