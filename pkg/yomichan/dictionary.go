// Package yomichan reads Yomichan dictionary archives.
//
// An archive is a zip file holding:
//
//   - index.json: the manifest describing the dictionary.
//   - term_bank_N.json: terms.
//   - term_meta_bank_N.json: term frequency or pitch data.
//   - kanji_bank_N.json: kanji.
//   - kanji_meta_bank_N.json: kanji frequency data.
//   - tag_bank_N.json: tag descriptions.
//
// Banks of the same kind are numbered shards of one collection and are
// concatenated in archive order. Other members are ignored.
package yomichan

import (
	"strings"

	"github.com/dustin/go-humanize"
)

// Dictionary is the merged content of one archive. It is built once by a
// Loader and not changed afterwards; the slices returned by its accessors
// must be treated as read-only.
type Dictionary struct {
	manifest  Manifest
	kanji     []Kanji
	kanjiMeta []Meta
	terms     []Term
	termMeta  []Meta
	tags      []Tag
}

func (d *Dictionary) Manifest() Manifest { return d.manifest }
func (d *Dictionary) Kanji() []Kanji     { return d.kanji[:len(d.kanji):len(d.kanji)] }
func (d *Dictionary) KanjiMeta() []Meta  { return d.kanjiMeta[:len(d.kanjiMeta):len(d.kanjiMeta)] }
func (d *Dictionary) Terms() []Term      { return d.terms[:len(d.terms):len(d.terms)] }
func (d *Dictionary) TermMeta() []Meta   { return d.termMeta[:len(d.termMeta):len(d.termMeta)] }
func (d *Dictionary) Tags() []Tag        { return d.tags[:len(d.tags):len(d.tags)] }

// Summary counts the entries of each collection.
func (d *Dictionary) Summary() Summary {
	return Summary{
		Kanji:     len(d.kanji),
		KanjiMeta: len(d.kanjiMeta),
		Terms:     len(d.terms),
		TermMeta:  len(d.termMeta),
		Tags:      len(d.tags),
	}
}

// Summary holds per-collection entry counts.
type Summary struct {
	Kanji     int
	KanjiMeta int
	Terms     int
	TermMeta  int
	Tags      int
}

// Total is the number of entries over all collections.
func (s Summary) Total() int {
	return s.Kanji + s.KanjiMeta + s.Terms + s.TermMeta + s.Tags
}

// String lists the non-empty collections, e.g. "1,204 kanji, 35 terms".
func (s Summary) String() string {
	var parts []string
	add := func(n int, label string) {
		if n > 0 {
			parts = append(parts, humanize.Comma(int64(n))+" "+label)
		}
	}
	add(s.Kanji, "kanji")
	add(s.KanjiMeta, "kanji meta")
	add(s.Terms, "terms")
	add(s.TermMeta, "term meta")
	add(s.Tags, "tags")
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, ", ")
}
