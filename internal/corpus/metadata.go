package corpus

import (
	"strings"
)

// Keyword tables for theme and tone tagging. Matching is substring-based on
// the lowercased text, so stems like "betray" also catch "betrayal".
var themeKeywords = map[string][]string{
	"love":     {"love", "heart", "affection", "passion", "beloved", "romance"},
	"death":    {"death", "die", "dead", "grave", "tomb", "mortality"},
	"power":    {"power", "king", "queen", "throne", "crown", "rule", "command"},
	"betrayal": {"betray", "traitor", "false", "deceit", "treachery"},
	"nature":   {"nature", "earth", "sky", "sun", "moon", "star", "flower", "tree"},
	"fate":     {"fate", "fortune", "destiny", "star", "doom"},
	"revenge":  {"revenge", "vengeance", "avenge", "retribution"},
	"honor":    {"honor", "noble", "virtue", "worthy", "dignity"},
	"madness":  {"mad", "insane", "crazy", "lunacy", "wit"},
	"time":     {"time", "hour", "day", "night", "moment", "age"},
	"jealousy": {"jealous", "envy", "envious", "green-eyed"},
	"ambition": {"ambition", "aspire", "desire", "seek"},
}

var toneKeywords = map[string][]string{
	"joyful":       {"joy", "happy", "merry", "delight", "glad", "pleasure"},
	"melancholy":   {"sad", "sorrow", "grief", "woe", "melancholy", "heavy"},
	"angry":        {"angry", "rage", "fury", "wrath", "mad", "fierce"},
	"fearful":      {"fear", "afraid", "terror", "dread", "fright"},
	"loving":       {"love", "dear", "sweet", "gentle", "tender", "fond"},
	"desperate":    {"desperate", "despair", "hopeless", "wretched"},
	"prideful":     {"proud", "pride", "vain", "glory", "boast"},
	"contemptuous": {"scorn", "contempt", "despise", "mock", "disdain"},
}

var (
	metaphorWords        = []string{" like ", " as ", " than "}
	imageryWords         = []string{"see", "hear", "smell", "taste", "touch", "feel", "look", "sound"}
	personificationWords = []string{"speaks", "weeps", "laughs", "smiles"}

	highFormality = []string{"thou", "thee", "thy", "thine", "hath", "doth", "wherefore", "whence"}
	lowFormality  = []string{"you", "your", "i'm", "it's", "will not"}

	pastWords    = []string{"was", "were", "had", "did", "ago", "yesterday", "once"}
	futureWords  = []string{"will", "shall", "tomorrow", "hereafter", "future"}
	presentWords = []string{"is", "am", "are", "now", "today"}
)

// Annotate fills every derived metadata field of a fragment from its text
// and provenance. The structural fields (ID, Text, Granularity, Play, Act,
// Scene, Character, Delivery) must already be set.
func Annotate(f *Fragment) {
	f.Tones = matchKeywords(f.Text, toneKeywords, "neutral")
	f.Themes = matchKeywords(f.Text, themeKeywords, "general")
	f.Meter = detectMeter(f.Text)
	f.Formality = detectFormality(f.Text)
	f.HasMetaphor = containsMetaphor(f.Text)
	f.HasQuestion = strings.Contains(f.Text, "?")
	f.HasExclamation = strings.Contains(f.Text, "!")
	f.WordCount = len(strings.Fields(f.Text))
	f.TimeReference = detectTimeReference(f.Text)
	f.Devices = detectDevices(f.Text)
	f.CharacterType = inferCharacterType(f.Character)
}

func matchKeywords(text string, table map[string][]string, fallback string) []string {
	lower := strings.ToLower(text)
	var tags []string
	for tag, words := range table {
		for _, w := range words {
			if strings.Contains(lower, w) {
				tags = append(tags, tag)
				break
			}
		}
	}
	if len(tags) == 0 {
		return []string{fallback}
	}
	sortStrings(tags)
	return tags
}

// detectMeter distinguishes verse from prose and flags lines whose syllable
// count falls outside the pentameter range as irregular.
func detectMeter(text string) Meter {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || !isUpper(rune(trimmed[0])) {
		return MeterProse
	}

	syllables := 0
	for _, word := range strings.Fields(trimmed) {
		syllables += countSyllables(word)
	}

	// Iambic pentameter runs ~10 syllables per line.
	if syllables >= 8 && syllables <= 12 {
		return MeterVerse
	}
	return MeterIrregular
}

func isUpper(r rune) bool {
	return r >= 'A' && r <= 'Z'
}

// countSyllables estimates syllables by counting vowel groups. A rough
// heuristic, but consistent enough for meter classification.
func countSyllables(word string) int {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return 0
	}
	word = strings.TrimSuffix(word, "e")

	count := 0
	prevVowel := false
	for _, r := range word {
		vowel := strings.ContainsRune("aeiouy", r)
		if vowel && !prevVowel {
			count++
		}
		prevVowel = vowel
	}
	if count < 1 {
		return 1
	}
	return count
}

func detectFormality(text string) string {
	lower := strings.ToLower(text)

	high := 0
	for _, w := range highFormality {
		if strings.Contains(lower, w) {
			high++
		}
	}
	low := 0
	for _, w := range lowFormality {
		if strings.Contains(lower, w) {
			low++
		}
	}

	switch {
	case high > low:
		return "high"
	case low > high:
		return "low"
	default:
		return "medium"
	}
}

func containsMetaphor(text string) bool {
	lower := " " + strings.ToLower(text) + " "
	for _, w := range metaphorWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func detectTimeReference(text string) string {
	lower := strings.ToLower(text)

	count := func(words []string) int {
		n := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				n++
			}
		}
		return n
	}

	past := count(pastWords)
	future := count(futureWords)
	present := count(presentWords)

	switch {
	case past > future && past > present:
		return "past"
	case future > past && future > present:
		return "future"
	case present > 0:
		return "present"
	default:
		return "timeless"
	}
}

func detectDevices(text string) []string {
	lower := strings.ToLower(text)
	var devices []string

	if hasAlliteration(lower) {
		devices = append(devices, "alliteration")
	}
	for _, w := range imageryWords {
		if strings.Contains(lower, w) {
			devices = append(devices, "imagery")
			break
		}
	}
	for _, w := range personificationWords {
		if strings.Contains(lower, w) {
			devices = append(devices, "personification")
			break
		}
	}

	if len(devices) == 0 {
		return []string{"none"}
	}
	return devices
}

// hasAlliteration reports whether two adjacent words share a starting
// letter. Expects lowercased input.
func hasAlliteration(lower string) bool {
	words := strings.Fields(lower)
	for i := 1; i < len(words); i++ {
		a, b := words[i-1][0], words[i][0]
		if a == b && a >= 'a' && a <= 'z' {
			return true
		}
	}
	return false
}

// inferCharacterType buckets a character by name. A knowledge base would do
// better; the heuristic mirrors how the corpus was originally annotated.
func inferCharacterType(character string) string {
	lower := strings.ToLower(character)

	for _, title := range []string{"king", "queen", "prince", "princess", "duke", "duchess"} {
		if strings.Contains(lower, title) {
			return "royalty"
		}
	}
	for _, w := range []string{"fool", "clown", "servant"} {
		if strings.Contains(lower, w) {
			return "comic_relief"
		}
	}
	for _, w := range []string{"lord", "lady", "sir"} {
		if strings.Contains(lower, w) {
			return "nobility"
		}
	}
	return "commoner"
}

// sortStrings is an insertion sort; tag lists are tiny and this keeps the
// output deterministic without pulling in sort for a hot path.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
