package scene

import (
	"fmt"
	"strings"
)

// Assemble renders a scene as a plain-text script. Speeches that ended with
// no fragments are omitted rather than printed as empty labels. Fragment
// texts join with single spaces; the fragments themselves are never altered.
func Assemble(scene *Scene) string {
	var b strings.Builder

	if scene.Spec.Title != "" {
		b.WriteString(scene.Spec.Title)
		b.WriteString("\n\n")
	}

	for _, speech := range scene.Speeches {
		if speech.Empty() {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", strings.ToUpper(speech.Character))
		texts := make([]string, len(speech.Fragments))
		for i, f := range speech.Fragments {
			texts[i] = f.Text
		}
		b.WriteString(strings.Join(texts, " "))
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Quotes used: %d\n", scene.QuotesUsed)
	return b.String()
}

// FormatScene renders the full presentation: a banner with title, premise,
// character roster and themes, followed by the assembled script.
func FormatScene(scene *Scene) string {
	var b strings.Builder

	title := scene.Spec.Title
	if title == "" {
		title = "A Scene Assembled from Fragments"
	}
	rule := strings.Repeat("=", len(title))
	fmt.Fprintf(&b, "%s\n%s\n%s\n\n", rule, title, rule)

	if scene.Spec.Premise != "" {
		fmt.Fprintf(&b, "Premise: %s\n", scene.Spec.Premise)
	}
	if len(scene.Spec.Characters) > 0 {
		names := make([]string, len(scene.Spec.Characters))
		for i, c := range scene.Spec.Characters {
			names[i] = c.Name
		}
		fmt.Fprintf(&b, "Characters: %s\n", strings.Join(names, ", "))
	}
	if len(scene.Spec.Themes) > 0 {
		fmt.Fprintf(&b, "Themes: %s\n", strings.Join(scene.Spec.Themes, ", "))
	}
	b.WriteString("\n")

	body := *scene
	body.Spec.Title = "" // the banner already carries it
	b.WriteString(Assemble(&body))
	return b.String()
}

// Attribution lists each used fragment with its source, for readers who want
// to know where every line came from.
func Attribution(scene *Scene) string {
	var b strings.Builder
	for _, speech := range scene.Speeches {
		for _, f := range speech.Fragments {
			fmt.Fprintf(&b, "%q — %s, %s %d.%d\n", f.Text, f.Character, f.Play, f.Act, f.Scene)
		}
	}
	return b.String()
}
