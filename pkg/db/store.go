package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/japaniel/yomiport/pkg/yomichan"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// rowsPerWrite is how many entries one WriteFunc inserts.
const rowsPerWrite = 500

// entryTables lists the per-dictionary tables, children of dictionaries.
var entryTables = []string{"terms", "kanji", "kanji_meta", "term_meta", "tags"}

// SaveDictionary stores d, replacing an earlier import with the same title
// and revision. The new import is written as pending and only replaces the
// stored one once all of its entries are committed; if any batch fails the
// partial import is removed and the earlier one stays. Batch failures are
// logged to log, which may be nil.
func SaveDictionary(ctx context.Context, conn *sql.DB, d *yomichan.Dictionary, log *zap.Logger) (Dictionary, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m := d.Manifest()
	rec := Dictionary{
		ImportID: uuid.NewString(),
		Title:    m.Title,
		Revision: m.Revision,
		Format:   int(m.Format),
		// Stored from Go so it reads back through the DATETIME column type.
		ImportedAt: time.Now().UTC().Truncate(time.Second),
	}

	err := conn.QueryRowContext(ctx, `INSERT INTO dictionaries (import_id, title, revision, sequenced, format, author, url, description, attribution, frequency_mode, imported_at, complete)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		RETURNING id`,
		rec.ImportID, m.Title, m.Revision, m.Sequenced, m.Format,
		m.Author, m.URL, m.Description, m.Attribution, m.FrequencyMode, rec.ImportedAt,
	).Scan(&rec.ID)
	if err != nil {
		return rec, fmt.Errorf("insert dictionary: %w", err)
	}

	log = log.With(zap.String("import_id", rec.ImportID), zap.String("title", m.Title), zap.String("revision", m.Revision))
	if err := writeEntries(ctx, conn, rec.ID, d, log); err != nil {
		return rec, discard(conn, rec.ID, err)
	}
	if err := promote(ctx, conn, rec); err != nil {
		return rec, discard(conn, rec.ID, fmt.Errorf("replace previous import: %w", err))
	}
	return rec, nil
}

// discard removes a pending import after err and returns err.
func discard(conn *sql.DB, id int64, err error) error {
	if delErr := DeleteDictionary(conn, id); delErr != nil {
		err = errors.Join(err, fmt.Errorf("clean up partial import: %w", delErr))
	}
	return err
}

// promote marks rec complete and removes every other import with the same
// title and revision, in one transaction.
func promote(ctx context.Context, conn *sql.DB, rec Dictionary) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	old, err := otherImports(tx, rec)
	if err != nil {
		return err
	}
	for _, id := range old {
		if err := DeleteDictionary(tx, id); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`UPDATE dictionaries SET complete = 1 WHERE id = ?`, rec.ID); err != nil {
		return err
	}
	return tx.Commit()
}

func writeEntries(ctx context.Context, conn *sql.DB, dictID int64, d *yomichan.Dictionary, log *zap.Logger) error {
	bw := NewBatchWriter(ctx, conn, 4)
	bw.OnError = func(err error) {
		log.Warn("Batch write failed", zap.Error(err))
	}

	submitChunks(bw, len(d.Terms()), func(ctx context.Context, tx *sql.Tx, from, to int) error {
		return insertTerms(ctx, tx, dictID, d.Terms(), from, to)
	})
	submitChunks(bw, len(d.Kanji()), func(ctx context.Context, tx *sql.Tx, from, to int) error {
		return insertKanji(ctx, tx, dictID, d.Kanji(), from, to)
	})
	submitChunks(bw, len(d.KanjiMeta()), func(ctx context.Context, tx *sql.Tx, from, to int) error {
		return insertMeta(ctx, tx, "kanji_meta", dictID, d.KanjiMeta(), from, to)
	})
	submitChunks(bw, len(d.TermMeta()), func(ctx context.Context, tx *sql.Tx, from, to int) error {
		return insertMeta(ctx, tx, "term_meta", dictID, d.TermMeta(), from, to)
	})
	submitChunks(bw, len(d.Tags()), func(ctx context.Context, tx *sql.Tx, from, to int) error {
		return insertTags(ctx, tx, dictID, d.Tags(), from, to)
	})

	return bw.Close()
}

// submitChunks splits n rows into WriteFuncs of rowsPerWrite rows each.
// Submit only fails after Close, which cannot happen here.
func submitChunks(bw *BatchWriter, n int, write func(ctx context.Context, tx *sql.Tx, from, to int) error) {
	for from := 0; from < n; from += rowsPerWrite {
		to := min(from+rowsPerWrite, n)
		_ = bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
			return write(ctx, tx, from, to)
		})
	}
}

func insertTerms(ctx context.Context, tx *sql.Tx, dictID int64, terms []yomichan.Term, from, to int) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO terms
		(dictionary_id, position, expression, reading, definition_tags, rules, score, glossary, sequence, term_tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := from; i < to; i++ {
		t := terms[i]
		glossary, err := json.Marshal(nonNil(t.Glossary))
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, dictID, i, t.Expression, t.Reading,
			joinTokens(t.DefinitionTags), joinTokens(t.Rules), t.Score, string(glossary),
			t.Sequence, joinTokens(t.TermTags)); err != nil {
			return fmt.Errorf("insert term %q: %w", t.Expression, err)
		}
	}
	return nil
}

func insertKanji(ctx context.Context, tx *sql.Tx, dictID int64, kanji []yomichan.Kanji, from, to int) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO kanji
		(dictionary_id, position, character, onyomi, kunyomi, tags, meanings, stats)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := from; i < to; i++ {
		k := kanji[i]
		meanings, err := json.Marshal(nonNil(k.Meanings))
		if err != nil {
			return err
		}
		stats := k.Stats
		if stats == nil {
			stats = map[string]string{}
		}
		statsJSON, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, dictID, i, k.Character, joinTokens(k.Onyomi),
			joinTokens(k.Kunyomi), joinTokens(k.Tags), string(meanings), string(statsJSON)); err != nil {
			return fmt.Errorf("insert kanji %q: %w", k.Character, err)
		}
	}
	return nil
}

func insertMeta(ctx context.Context, tx *sql.Tx, table string, dictID int64, metas []yomichan.Meta, from, to int) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+table+`
		(dictionary_id, position, subject, mode, frequency, data)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := from; i < to; i++ {
		m := metas[i]
		var freq, data interface{}
		switch v := m.Data.(type) {
		case yomichan.Frequency:
			freq = int64(v)
		case yomichan.Structured:
			data = string(v)
		}
		if _, err := stmt.ExecContext(ctx, dictID, i, m.Subject, m.Mode, freq, data); err != nil {
			return fmt.Errorf("insert %s %q: %w", table, m.Subject, err)
		}
	}
	return nil
}

func insertTags(ctx context.Context, tx *sql.Tx, dictID int64, tags []yomichan.Tag, from, to int) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tags
		(dictionary_id, position, name, category, sort_order, notes, score)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := from; i < to; i++ {
		g := tags[i]
		if _, err := stmt.ExecContext(ctx, dictID, i, g.Name, g.Category, g.Order, g.Notes, g.Score); err != nil {
			return fmt.Errorf("insert tag %q: %w", g.Name, err)
		}
	}
	return nil
}

// DeleteDictionary removes a dictionary and its entries.
func DeleteDictionary(db DBExecutor, id int64) error {
	if id <= 0 {
		return fmt.Errorf("dictionary id must be positive")
	}
	for _, table := range entryTables {
		if _, err := db.Exec(`DELETE FROM `+table+` WHERE dictionary_id = ?`, id); err != nil {
			return err
		}
	}
	_, err := db.Exec(`DELETE FROM dictionaries WHERE id = ?`, id)
	return err
}

// otherImports returns the ids of every import sharing rec's title and
// revision, pending ones included.
func otherImports(db DBExecutor, rec Dictionary) ([]int64, error) {
	rows, err := db.Query(`SELECT id FROM dictionaries WHERE title = ? AND revision = ? AND id <> ?`, rec.Title, rec.Revision, rec.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListDictionaries returns the completely stored dictionaries ordered by
// title and revision. Imports still being written are left out.
func ListDictionaries(db DBExecutor) ([]Dictionary, error) {
	rows, err := db.Query(`SELECT id, import_id, title, revision, format, imported_at FROM dictionaries WHERE complete = 1 ORDER BY title, revision`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Dictionary
	for rows.Next() {
		var d Dictionary
		if err := rows.Scan(&d.ID, &d.ImportID, &d.Title, &d.Revision, &d.Format, &d.ImportedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDictionaryStats counts the stored entries of a dictionary.
func GetDictionaryStats(db DBExecutor, id int64) (yomichan.Summary, error) {
	var s yomichan.Summary
	counts := []struct {
		table string
		dst   *int
	}{
		{"terms", &s.Terms},
		{"kanji", &s.Kanji},
		{"kanji_meta", &s.KanjiMeta},
		{"term_meta", &s.TermMeta},
		{"tags", &s.Tags},
	}
	for _, c := range counts {
		if err := db.QueryRow(`SELECT COUNT(*) FROM `+c.table+` WHERE dictionary_id = ?`, id).Scan(c.dst); err != nil {
			return s, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	return s, nil
}

func joinTokens(tokens []string) string {
	return strings.Join(tokens, " ")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
