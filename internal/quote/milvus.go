package quote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/quillworks/cento/internal/corpus"
)

// Common errors for Milvus operations.
var (
	ErrInvalidDimension = errors.New("invalid vector dimension")
	ErrConnectionFailed = errors.New("failed to connect to Milvus")
	ErrInsertFailed     = errors.New("failed to insert fragments")
	ErrSearchFailed     = errors.New("failed to search vectors")
)

// MilvusConfig holds configuration for the Milvus connection and collection.
type MilvusConfig struct {
	Address        string // Milvus server address (e.g. "localhost:19530")
	CollectionName string
	Dimension      int // embedding vector dimension

	// HNSW index parameters
	M              int
	EfConstruction int
}

// DefaultMilvusConfig returns defaults suitable for text-embedding-3-small.
func DefaultMilvusConfig() MilvusConfig {
	return MilvusConfig{
		Address:        "localhost:19530",
		CollectionName: "cento_fragments",
		Dimension:      1536,
		M:              16,
		EfConstruction: 256,
	}
}

// MilvusStore implements Store backed by a Milvus collection. Scalar filters
// are pushed down as boolean expressions; list-valued metadata is stored
// comma-joined and filtered by the retriever.
type MilvusStore struct {
	client client.Client
	config MilvusConfig
}

// NewMilvusStore connects to Milvus and ensures the fragment collection
// exists with the expected schema.
func NewMilvusStore(ctx context.Context, config MilvusConfig) (*MilvusStore, error) {
	if config.Dimension <= 0 {
		return nil, ErrInvalidDimension
	}

	c, err := client.NewGrpcClient(ctx, config.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrIndexUnavailable, ErrConnectionFailed, err)
	}

	store := &MilvusStore{client: c, config: config}
	if err := store.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return store, nil
}

var fragmentOutputFields = []string{
	"id", "text", "granularity", "play", "act", "scene_no", "character",
	"character_type", "tones", "themes", "addressee", "delivery", "meter",
	"formality", "has_metaphor", "has_question", "has_exclamation",
	"word_count", "time_reference", "devices",
}

func (m *MilvusStore) ensureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.config.CollectionName)
	if err != nil {
		return fmt.Errorf("%w: failed to check collection existence: %v", ErrIndexUnavailable, err)
	}
	if has {
		return nil
	}

	varchar := func(name string, maxLen int) *entity.Field {
		return &entity.Field{
			Name:     name,
			DataType: entity.FieldTypeVarChar,
			TypeParams: map[string]string{
				"max_length": strconv.Itoa(maxLen),
			},
		}
	}

	schema := &entity.Schema{
		CollectionName: m.config.CollectionName,
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "64"},
			},
			varchar("text", 2048),
			varchar("granularity", 16),
			varchar("play", 128),
			{Name: "act", DataType: entity.FieldTypeInt64},
			{Name: "scene_no", DataType: entity.FieldTypeInt64},
			varchar("character", 128),
			varchar("character_type", 32),
			varchar("tones", 256),  // comma-joined tag set
			varchar("themes", 256), // comma-joined tag set
			varchar("addressee", 128),
			varchar("delivery", 16),
			varchar("meter", 16),
			varchar("formality", 8),
			{Name: "has_metaphor", DataType: entity.FieldTypeBool},
			{Name: "has_question", DataType: entity.FieldTypeBool},
			{Name: "has_exclamation", DataType: entity.FieldTypeBool},
			{Name: "word_count", DataType: entity.FieldTypeInt64},
			varchar("time_reference", 16),
			varchar("devices", 256),
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(m.config.Dimension),
				},
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, m.config.M, m.config.EfConstruction)
	if err != nil {
		return fmt.Errorf("failed to create index config: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.config.CollectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, m.config.CollectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	return nil
}

// Insert adds fragments with embeddings to the collection.
func (m *MilvusStore) Insert(ctx context.Context, fragments []corpus.Fragment) error {
	if len(fragments) == 0 {
		return ErrEmptyFragments
	}

	n := len(fragments)
	ids := make([]string, n)
	texts := make([]string, n)
	granularities := make([]string, n)
	plays := make([]string, n)
	acts := make([]int64, n)
	scenes := make([]int64, n)
	characters := make([]string, n)
	characterTypes := make([]string, n)
	tones := make([]string, n)
	themes := make([]string, n)
	addressees := make([]string, n)
	deliveries := make([]string, n)
	meters := make([]string, n)
	formalities := make([]string, n)
	hasMetaphor := make([]bool, n)
	hasQuestion := make([]bool, n)
	hasExclamation := make([]bool, n)
	wordCounts := make([]int64, n)
	timeRefs := make([]string, n)
	devices := make([]string, n)
	embeddings := make([][]float32, n)

	for i, f := range fragments {
		if len(f.Embedding) != m.config.Dimension {
			return fmt.Errorf("%w: fragment %s has dimension %d, expected %d",
				ErrInvalidDimension, f.ID, len(f.Embedding), m.config.Dimension)
		}
		ids[i] = f.ID
		texts[i] = f.Text
		granularities[i] = string(f.Granularity)
		plays[i] = f.Play
		acts[i] = int64(f.Act)
		scenes[i] = int64(f.Scene)
		characters[i] = f.Character
		characterTypes[i] = f.CharacterType
		tones[i] = strings.Join(f.Tones, ",")
		themes[i] = strings.Join(f.Themes, ",")
		addressees[i] = f.Addressee
		deliveries[i] = string(f.Delivery)
		meters[i] = string(f.Meter)
		formalities[i] = f.Formality
		hasMetaphor[i] = f.HasMetaphor
		hasQuestion[i] = f.HasQuestion
		hasExclamation[i] = f.HasExclamation
		wordCounts[i] = int64(f.WordCount)
		timeRefs[i] = f.TimeReference
		devices[i] = strings.Join(f.Devices, ",")
		embeddings[i] = f.Embedding
	}

	columns := []entity.Column{
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("granularity", granularities),
		entity.NewColumnVarChar("play", plays),
		entity.NewColumnInt64("act", acts),
		entity.NewColumnInt64("scene_no", scenes),
		entity.NewColumnVarChar("character", characters),
		entity.NewColumnVarChar("character_type", characterTypes),
		entity.NewColumnVarChar("tones", tones),
		entity.NewColumnVarChar("themes", themes),
		entity.NewColumnVarChar("addressee", addressees),
		entity.NewColumnVarChar("delivery", deliveries),
		entity.NewColumnVarChar("meter", meters),
		entity.NewColumnVarChar("formality", formalities),
		entity.NewColumnBool("has_metaphor", hasMetaphor),
		entity.NewColumnBool("has_question", hasQuestion),
		entity.NewColumnBool("has_exclamation", hasExclamation),
		entity.NewColumnInt64("word_count", wordCounts),
		entity.NewColumnVarChar("time_reference", timeRefs),
		entity.NewColumnVarChar("devices", devices),
		entity.NewColumnFloatVector("embedding", m.config.Dimension, embeddings),
	}

	if _, err := m.client.Insert(ctx, m.config.CollectionName, "", columns...); err != nil {
		return fmt.Errorf("%w: %w: %v", ErrIndexUnavailable, ErrInsertFailed, err)
	}
	return nil
}

// Flush persists pending inserts.
func (m *MilvusStore) Flush(ctx context.Context) error {
	if err := m.client.Flush(ctx, m.config.CollectionName, false); err != nil {
		return fmt.Errorf("%w: failed to flush: %v", ErrIndexUnavailable, err)
	}
	return nil
}

// Search performs top-K cosine similarity search with scalar pre-filtering.
func (m *MilvusStore) Search(ctx context.Context, vector []float32, topK int, filter *ScalarFilter) ([]Scored, error) {
	if len(vector) != m.config.Dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, m.config.Dimension, len(vector))
	}

	expr := filterExpr(filter)

	sp, err := entity.NewIndexHNSWSearchParam(searchEf(topK))
	if err != nil {
		return nil, fmt.Errorf("failed to create search params: %w", err)
	}

	results, err := m.client.Search(
		ctx,
		m.config.CollectionName,
		nil, // partition names
		expr,
		fragmentOutputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrIndexUnavailable, ErrSearchFailed, err)
	}
	if len(results) == 0 {
		return []Scored{}, nil
	}

	scored := make([]Scored, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		f := parseFragmentRow(results[0].Fields, i)
		scored = append(scored, Scored{Fragment: f, Score: results[0].Scores[i]})
	}
	return scored, nil
}

// Get fetches a single fragment by id; returns nil when absent.
func (m *MilvusStore) Get(ctx context.Context, id string) (*corpus.Fragment, error) {
	columns, err := m.client.Query(
		ctx,
		m.config.CollectionName,
		nil,
		fmt.Sprintf(`id == %q`, id),
		fragmentOutputFields,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query fragment: %v", ErrIndexUnavailable, err)
	}
	if len(columns) == 0 || columns[0].Len() == 0 {
		return nil, nil
	}
	f := parseFragmentRow(columns, 0)
	return &f, nil
}

// Exists reports which of the given fragment ids are present.
func (m *MilvusStore) Exists(ctx context.Context, ids []string) (map[string]bool, error) {
	existence := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return existence, nil
	}
	for _, id := range ids {
		existence[id] = false
	}

	columns, err := m.client.Query(
		ctx,
		m.config.CollectionName,
		nil,
		idInExpr(ids),
		[]string{"id"},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query fragments: %v", ErrIndexUnavailable, err)
	}

	for _, column := range columns {
		if column.Name() != "id" {
			continue
		}
		if col, ok := column.(*entity.ColumnVarChar); ok {
			for _, id := range col.Data() {
				existence[id] = true
			}
		}
	}
	return existence, nil
}

// Count returns the number of indexed fragments.
func (m *MilvusStore) Count(ctx context.Context) (int64, error) {
	stats, err := m.client.GetCollectionStatistics(ctx, m.config.CollectionName)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get stats: %v", ErrIndexUnavailable, err)
	}
	count, err := strconv.ParseInt(stats["row_count"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse row count: %w", err)
	}
	return count, nil
}

// Delete removes fragments by id.
func (m *MilvusStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := m.client.Delete(ctx, m.config.CollectionName, "", idInExpr(ids)); err != nil {
		return fmt.Errorf("%w: failed to delete fragments: %v", ErrIndexUnavailable, err)
	}
	return nil
}

// Close releases the Milvus connection.
func (m *MilvusStore) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// defaultSearchEf is the HNSW search-time candidate list size.
const defaultSearchEf = 64

// searchEf widens ef when topK outgrows the default; Milvus rejects HNSW
// searches with ef < topK, and topK grows with a session's exclusion set.
func searchEf(topK int) int {
	if topK > defaultSearchEf {
		return topK
	}
	return defaultSearchEf
}

// filterExpr builds the boolean expression for the scalar filters a Milvus
// collection can evaluate itself.
func filterExpr(filter *ScalarFilter) string {
	if filter == nil {
		return ""
	}

	var terms []string
	if filter.Delivery != "" {
		terms = append(terms, fmt.Sprintf(`delivery == %q`, filter.Delivery))
	}
	if filter.Granularity != "" {
		terms = append(terms, fmt.Sprintf(`granularity == %q`, filter.Granularity))
	}
	if filter.Formality != "" {
		terms = append(terms, fmt.Sprintf(`formality == %q`, filter.Formality))
	}
	if filter.Play != "" {
		terms = append(terms, fmt.Sprintf(`play == %q`, filter.Play))
	}
	return strings.Join(terms, " and ")
}

func idInExpr(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	return fmt.Sprintf("id in [%s]", strings.Join(quoted, ", "))
}

// parseFragmentRow reconstructs a fragment from one result row's columns.
func parseFragmentRow(columns []entity.Column, i int) corpus.Fragment {
	var f corpus.Fragment

	str := func(c entity.Column) string {
		if col, ok := c.(*entity.ColumnVarChar); ok {
			return col.Data()[i]
		}
		return ""
	}
	i64 := func(c entity.Column) int64 {
		if col, ok := c.(*entity.ColumnInt64); ok {
			return col.Data()[i]
		}
		return 0
	}
	boolean := func(c entity.Column) bool {
		if col, ok := c.(*entity.ColumnBool); ok {
			return col.Data()[i]
		}
		return false
	}

	for _, c := range columns {
		switch c.Name() {
		case "id":
			f.ID = str(c)
		case "text":
			f.Text = str(c)
		case "granularity":
			f.Granularity = corpus.Granularity(str(c))
		case "play":
			f.Play = str(c)
		case "act":
			f.Act = int(i64(c))
		case "scene_no":
			f.Scene = int(i64(c))
		case "character":
			f.Character = str(c)
		case "character_type":
			f.CharacterType = str(c)
		case "tones":
			f.Tones = splitTags(str(c))
		case "themes":
			f.Themes = splitTags(str(c))
		case "addressee":
			f.Addressee = str(c)
		case "delivery":
			f.Delivery = corpus.Delivery(str(c))
		case "meter":
			f.Meter = corpus.Meter(str(c))
		case "formality":
			f.Formality = str(c)
		case "has_metaphor":
			f.HasMetaphor = boolean(c)
		case "has_question":
			f.HasQuestion = boolean(c)
		case "has_exclamation":
			f.HasExclamation = boolean(c)
		case "word_count":
			f.WordCount = int(i64(c))
		case "time_reference":
			f.TimeReference = str(c)
		case "devices":
			f.Devices = splitTags(str(c))
		}
	}
	return f
}

func splitTags(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}
