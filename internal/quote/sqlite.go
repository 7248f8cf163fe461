package quote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/quillworks/cento/internal/corpus"
)

const fragmentSchema = `
CREATE TABLE IF NOT EXISTS fragments (
	id              TEXT PRIMARY KEY,
	text            TEXT NOT NULL,
	granularity     TEXT NOT NULL,
	play            TEXT NOT NULL,
	act             INTEGER NOT NULL,
	scene_no        INTEGER NOT NULL,
	character       TEXT NOT NULL,
	character_type  TEXT NOT NULL,
	tones           TEXT NOT NULL,
	themes          TEXT NOT NULL,
	addressee       TEXT NOT NULL,
	delivery        TEXT NOT NULL,
	meter           TEXT NOT NULL,
	formality       TEXT NOT NULL,
	has_metaphor    INTEGER NOT NULL,
	has_question    INTEGER NOT NULL,
	has_exclamation INTEGER NOT NULL,
	word_count      INTEGER NOT NULL,
	time_reference  TEXT NOT NULL,
	devices         TEXT NOT NULL,
	embedding       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fragments_delivery ON fragments(delivery);
CREATE INDEX IF NOT EXISTS idx_fragments_play ON fragments(play);
`

// fragmentRow is the sqlx scan target. Tag sets are comma-joined and the
// embedding is stored as a JSON array, which keeps the table portable at the
// cost of decoding on read.
type fragmentRow struct {
	ID             string `db:"id"`
	Text           string `db:"text"`
	Granularity    string `db:"granularity"`
	Play           string `db:"play"`
	Act            int    `db:"act"`
	SceneNo        int    `db:"scene_no"`
	Character      string `db:"character"`
	CharacterType  string `db:"character_type"`
	Tones          string `db:"tones"`
	Themes         string `db:"themes"`
	Addressee      string `db:"addressee"`
	Delivery       string `db:"delivery"`
	Meter          string `db:"meter"`
	Formality      string `db:"formality"`
	HasMetaphor    bool   `db:"has_metaphor"`
	HasQuestion    bool   `db:"has_question"`
	HasExclamation bool   `db:"has_exclamation"`
	WordCount      int    `db:"word_count"`
	TimeReference  string `db:"time_reference"`
	Devices        string `db:"devices"`
	Embedding      string `db:"embedding"`
}

// SQLiteStore implements Store on an embedded SQLite database. Similarity
// search scans the scalar-filtered rows and ranks by cosine in process,
// which is plenty for a corpus of a few thousand fragments and removes the
// need for a running vector database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// fragment table exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open sqlite database: %v", ErrIndexUnavailable, err)
	}
	if _, err := db.Exec(fragmentSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to create schema: %v", ErrIndexUnavailable, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Insert upserts fragments with embeddings.
func (s *SQLiteStore) Insert(ctx context.Context, fragments []corpus.Fragment) error {
	if len(fragments) == 0 {
		return ErrEmptyFragments
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ErrIndexUnavailable, err)
	}
	defer tx.Rollback()

	const query = `
		INSERT OR REPLACE INTO fragments (
			id, text, granularity, play, act, scene_no, character,
			character_type, tones, themes, addressee, delivery, meter,
			formality, has_metaphor, has_question, has_exclamation,
			word_count, time_reference, devices, embedding
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for _, f := range fragments {
		vec, err := json.Marshal(f.Embedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding for %s: %w", f.ID, err)
		}
		_, err = tx.ExecContext(ctx, query,
			f.ID, f.Text, string(f.Granularity), f.Play, f.Act, f.Scene,
			f.Character, f.CharacterType,
			strings.Join(f.Tones, ","), strings.Join(f.Themes, ","),
			f.Addressee, string(f.Delivery), string(f.Meter), f.Formality,
			f.HasMetaphor, f.HasQuestion, f.HasExclamation,
			f.WordCount, f.TimeReference, strings.Join(f.Devices, ","),
			string(vec),
		)
		if err != nil {
			return fmt.Errorf("%w: failed to insert fragment %s: %v", ErrIndexUnavailable, f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit: %v", ErrIndexUnavailable, err)
	}
	return nil
}

// Flush is a no-op: SQLite writes are durable at commit.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	return nil
}

// Search applies scalar filters in SQL, then ranks the surviving rows by
// cosine similarity against the query vector.
func (s *SQLiteStore) Search(ctx context.Context, vector []float32, topK int, filter *ScalarFilter) ([]Scored, error) {
	query := "SELECT * FROM fragments"
	var args []interface{}

	if clause, clauseArgs := filterClause(filter); clause != "" {
		query += " WHERE " + clause
		args = clauseArgs
	}

	var rows []fragmentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrIndexUnavailable, ErrSearchFailed, err)
	}

	scored := make([]Scored, 0, len(rows))
	for _, row := range rows {
		f, err := row.toFragment()
		if err != nil {
			return nil, err
		}
		scored = append(scored, Scored{
			Fragment: f,
			Score:    cosineSimilarity(vector, f.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Get fetches a single fragment by id; returns nil when absent.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*corpus.Fragment, error) {
	var row fragmentRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM fragments WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query fragment: %v", ErrIndexUnavailable, err)
	}
	f, err := row.toFragment()
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Exists reports which of the given fragment ids are present.
func (s *SQLiteStore) Exists(ctx context.Context, ids []string) (map[string]bool, error) {
	existence := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return existence, nil
	}
	for _, id := range ids {
		existence[id] = false
	}

	query, args, err := sqlx.In("SELECT id FROM fragments WHERE id IN (?)", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var found []string
	if err := s.db.SelectContext(ctx, &found, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("%w: failed to query fragments: %v", ErrIndexUnavailable, err)
	}
	for _, id := range found {
		existence[id] = true
	}
	return existence, nil
}

// Count returns the number of indexed fragments.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM fragments"); err != nil {
		return 0, fmt.Errorf("%w: failed to count fragments: %v", ErrIndexUnavailable, err)
	}
	return count, nil
}

// Delete removes fragments by id.
func (s *SQLiteStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In("DELETE FROM fragments WHERE id IN (?)", ids)
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("%w: failed to delete fragments: %v", ErrIndexUnavailable, err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func filterClause(filter *ScalarFilter) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}
	var terms []string
	var args []interface{}
	if filter.Delivery != "" {
		terms = append(terms, "delivery = ?")
		args = append(args, filter.Delivery)
	}
	if filter.Granularity != "" {
		terms = append(terms, "granularity = ?")
		args = append(args, filter.Granularity)
	}
	if filter.Formality != "" {
		terms = append(terms, "formality = ?")
		args = append(args, filter.Formality)
	}
	if filter.Play != "" {
		terms = append(terms, "play = ?")
		args = append(args, filter.Play)
	}
	return strings.Join(terms, " AND "), args
}

func (r fragmentRow) toFragment() (corpus.Fragment, error) {
	var embedding []float32
	if err := json.Unmarshal([]byte(r.Embedding), &embedding); err != nil {
		return corpus.Fragment{}, fmt.Errorf("failed to decode embedding for %s: %w", r.ID, err)
	}
	return corpus.Fragment{
		ID:             r.ID,
		Text:           r.Text,
		Granularity:    corpus.Granularity(r.Granularity),
		Play:           r.Play,
		Act:            r.Act,
		Scene:          r.SceneNo,
		Character:      r.Character,
		CharacterType:  r.CharacterType,
		Tones:          splitTags(r.Tones),
		Themes:         splitTags(r.Themes),
		Addressee:      r.Addressee,
		Delivery:       corpus.Delivery(r.Delivery),
		Meter:          corpus.Meter(r.Meter),
		Formality:      r.Formality,
		HasMetaphor:    r.HasMetaphor,
		HasQuestion:    r.HasQuestion,
		HasExclamation: r.HasExclamation,
		WordCount:      r.WordCount,
		TimeReference:  r.TimeReference,
		Devices:        splitTags(r.Devices),
		Embedding:      embedding,
	}, nil
}
