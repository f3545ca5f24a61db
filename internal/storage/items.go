package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/vono/internal/item"
)

const itemColumns = "id, created_at, original_transcript, audio_data, language, title, tags, summary, key_facts, intent, data"

// SaveItem inserts the item, or replaces it when the ID already exists.
func (s *Store) SaveItem(v item.VoiceItem) error {
	tags, err := marshalStrings(v.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	keyFacts, err := marshalStrings(v.KeyFacts)
	if err != nil {
		return fmt.Errorf("encoding key facts: %w", err)
	}
	data, err := json.Marshal(v.Data)
	if err != nil {
		return fmt.Errorf("encoding item data: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO voice_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			original_transcript = excluded.original_transcript,
			audio_data = excluded.audio_data,
			language = excluded.language,
			title = excluded.title,
			tags = excluded.tags,
			summary = excluded.summary,
			key_facts = excluded.key_facts,
			intent = excluded.intent,
			data = excluded.data`,
		v.ID, v.CreatedAt.UTC().Format(time.RFC3339), v.OriginalTranscript, v.AudioData,
		v.Language, v.Title, tags, v.Summary, keyFacts, string(v.Intent), string(data),
	)
	return err
}

// GetItem returns the item with the given ID, or ErrNotFound.
func (s *Store) GetItem(id string) (item.VoiceItem, error) {
	row := s.db.QueryRow("SELECT "+itemColumns+" FROM voice_items WHERE id = ?", id)
	v, err := scanItem(row.Scan)
	if err == sql.ErrNoRows {
		return item.VoiceItem{}, ErrNotFound
	}
	return v, err
}

// ListItems returns items newest first.
func (s *Store) ListItems(limit, offset int) ([]item.VoiceItem, error) {
	rows, err := s.db.Query(
		"SELECT "+itemColumns+" FROM voice_items ORDER BY created_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

// DeleteItem removes the item, reporting whether it was present.
func (s *Store) DeleteItem(id string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM voice_items WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountItems returns the number of stored items.
func (s *Store) CountItems() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM voice_items").Scan(&n)
	return n, err
}

// SearchItems matches the query case-insensitively against title,
// transcript, summary and tags, newest first.
func (s *Store) SearchItems(query string, limit int) ([]item.VoiceItem, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	rows, err := s.db.Query(`
		SELECT `+itemColumns+` FROM voice_items
		WHERE lower(title) LIKE ?
		   OR lower(original_transcript) LIKE ?
		   OR lower(summary) LIKE ?
		   OR lower(tags) LIKE ?
		ORDER BY created_at DESC LIMIT ?`,
		pattern, pattern, pattern, pattern, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func collectItems(rows *sql.Rows) ([]item.VoiceItem, error) {
	var results []item.VoiceItem
	for rows.Next() {
		v, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	return results, rows.Err()
}

func scanItem(scan func(dest ...any) error) (item.VoiceItem, error) {
	var v item.VoiceItem
	var createdAt, tags, keyFacts, intent, data string
	if err := scan(&v.ID, &createdAt, &v.OriginalTranscript, &v.AudioData, &v.Language,
		&v.Title, &tags, &v.Summary, &keyFacts, &intent, &data); err != nil {
		return item.VoiceItem{}, err
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return item.VoiceItem{}, fmt.Errorf("parsing created_at: %w", err)
	}
	v.CreatedAt = t
	v.Intent = item.Intent(intent)

	if err := json.Unmarshal([]byte(tags), &v.Tags); err != nil {
		return item.VoiceItem{}, fmt.Errorf("decoding tags: %w", err)
	}
	if err := json.Unmarshal([]byte(keyFacts), &v.KeyFacts); err != nil {
		return item.VoiceItem{}, fmt.Errorf("decoding key facts: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &v.Data); err != nil {
		return item.VoiceItem{}, fmt.Errorf("decoding item data: %w", err)
	}
	return v, nil
}

// marshalStrings renders a string list as JSON text, treating nil as
// the empty list.
func marshalStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}
