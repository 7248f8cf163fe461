// Package corpus defines the annotated fragment model and the tooling that
// builds fragments from raw play texts: structural chunking at several
// granularities plus keyword-driven metadata extraction.
package corpus

// Granularity is the size class of a fragment.
type Granularity string

const (
	GranularityFullLine Granularity = "full_line"
	GranularityPhrase   Granularity = "phrase"
	GranularityFragment Granularity = "fragment" // 3-8 word window
)

// Delivery describes the dramatic context a fragment was spoken in.
type Delivery string

const (
	DeliverySoliloquy Delivery = "soliloquy"
	DeliveryDialogue  Delivery = "dialogue"
	DeliveryAside     Delivery = "aside"
	DeliveryMonologue Delivery = "monologue"
)

// Meter classifies the verse form of a fragment.
type Meter string

const (
	MeterVerse     Meter = "verse"
	MeterProse     Meter = "prose"
	MeterIrregular Meter = "irregular"
)

// Fragment is an atomic authored excerpt with fixed metadata and a
// precomputed embedding. Fragments are immutable once built; the ID is a
// content hash and therefore stable across process restarts.
type Fragment struct {
	ID          string      `json:"id"`
	Text        string      `json:"text"`
	Granularity Granularity `json:"granularity"`

	Play      string `json:"play"`
	Act       int    `json:"act"`
	Scene     int    `json:"scene"`
	Character string `json:"character"`

	CharacterType  string   `json:"character_type"`
	Tones          []string `json:"emotional_tone"`
	Themes         []string `json:"themes"`
	Addressee      string   `json:"addressee,omitempty"`
	Delivery       Delivery `json:"delivery"`
	Meter          Meter    `json:"meter"`
	Formality      string   `json:"formality"` // high, medium, low
	HasMetaphor    bool     `json:"has_metaphor"`
	HasQuestion    bool     `json:"has_question"`
	HasExclamation bool     `json:"has_exclamation"`
	WordCount      int      `json:"word_count"`
	TimeReference  string   `json:"time_reference"` // past, present, future, timeless
	Devices        []string `json:"literary_devices"`

	Embedding []float32 `json:"embedding,omitempty"`
}
