package yomichan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Manifest is the decoded index.json of a dictionary archive.
type Manifest struct {
	Title    string
	Revision string
	// Sequenced is advisory. Nothing checks that terms actually carry sequences.
	Sequenced bool
	// Format is the data format version, taken from "format" or its alias
	// "version". Zero means neither was present.
	Format        uint8
	Author        string
	URL           string
	Description   string
	Attribution   string
	FrequencyMode string
}

// manifestFile mirrors index.json so that missing required fields and the
// format/version alias can be told apart before normalizing.
type manifestFile struct {
	Title         *string `json:"title"`
	Revision      *string `json:"revision"`
	Sequenced     *bool   `json:"sequenced"`
	Format        *uint8  `json:"format"`
	Version       *uint8  `json:"version"`
	Author        string  `json:"author"`
	URL           string  `json:"url"`
	Description   string  `json:"description"`
	Attribution   string  `json:"attribution"`
	FrequencyMode string  `json:"frequencyMode"`
}

func (m *Manifest) UnmarshalJSON(data []byte) error {
	var f manifestFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	if f.Title == nil {
		return fmt.Errorf("manifest: missing title")
	}
	if f.Revision == nil {
		return fmt.Errorf("manifest: missing revision")
	}
	out := Manifest{
		Title:         *f.Title,
		Revision:      *f.Revision,
		Author:        f.Author,
		URL:           f.URL,
		Description:   f.Description,
		Attribution:   f.Attribution,
		FrequencyMode: f.FrequencyMode,
	}
	if f.Sequenced != nil {
		out.Sequenced = *f.Sequenced
	}
	switch {
	case f.Format != nil:
		out.Format = *f.Format
	case f.Version != nil:
		out.Format = *f.Version
	}
	*m = out
	return nil
}

// Inflection rule identifiers used in Term.Rules.
const (
	RuleIchidan    = "v1"
	RuleGodan      = "v5"
	RuleSuru       = "vs"
	RuleKuru       = "vk"
	RuleIAdjective = "adj-i"
)

// IsKnownRule reports whether s is one of the rule identifiers above.
func IsKnownRule(s string) bool {
	switch s {
	case RuleIchidan, RuleGodan, RuleSuru, RuleKuru, RuleIAdjective:
		return true
	}
	return false
}

// Term is one entry of a term bank.
type Term struct {
	Expression string
	// Reading is empty when it is the same as Expression.
	Reading        string
	DefinitionTags []string
	Rules          []string
	// Score ranks popularity. Negative is rarer, positive more common.
	Score    int16
	Glossary []string
	// Terms sharing a Sequence belong together for merged display.
	Sequence uint32
	TermTags []string
}

// ReadingOrExpression returns the reading, falling back to the expression.
func (t Term) ReadingOrExpression() string {
	if t.Reading == "" {
		return t.Expression
	}
	return t.Reading
}

// Uninflected reports whether the term has no inflection rules (nouns and the like).
func (t Term) Uninflected() bool { return len(t.Rules) == 0 }

func (t *Term) UnmarshalJSON(data []byte) error {
	tp, err := newTuple("term", data, 8)
	if err != nil {
		return err
	}
	var out Term
	var defTags, rules, termTags string
	tp.read(0, "expression", &out.Expression)
	tp.read(1, "reading", &out.Reading)
	tp.read(2, "definition tags", &defTags)
	tp.read(3, "rules", &rules)
	tp.read(4, "score", &out.Score)
	tp.read(5, "glossary", &out.Glossary)
	tp.read(6, "sequence", &out.Sequence)
	tp.read(7, "term tags", &termTags)
	if tp.err != nil {
		return tp.err
	}
	out.DefinitionTags = splitTokens(defTags)
	out.Rules = splitTokens(rules)
	out.TermTags = splitTokens(termTags)
	*t = out
	return nil
}

func (t Term) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{
		t.Expression,
		t.Reading,
		joinTokens(t.DefinitionTags),
		joinTokens(t.Rules),
		t.Score,
		nonNil(t.Glossary),
		t.Sequence,
		joinTokens(t.TermTags),
	})
}

// Kanji is one entry of a kanji bank.
type Kanji struct {
	Character string
	Onyomi    []string
	Kunyomi   []string
	Tags      []string
	Meanings  []string
	// Stats values are opaque strings at this layer.
	Stats map[string]string
}

func (k *Kanji) UnmarshalJSON(data []byte) error {
	tp, err := newTuple("kanji", data, 6)
	if err != nil {
		return err
	}
	var out Kanji
	var onyomi, kunyomi, tags string
	tp.read(0, "character", &out.Character)
	tp.read(1, "onyomi", &onyomi)
	tp.read(2, "kunyomi", &kunyomi)
	tp.read(3, "tags", &tags)
	tp.read(4, "meanings", &out.Meanings)
	tp.read(5, "stats", &out.Stats)
	if tp.err != nil {
		return tp.err
	}
	out.Onyomi = splitTokens(onyomi)
	out.Kunyomi = splitTokens(kunyomi)
	out.Tags = splitTokens(tags)
	*k = out
	return nil
}

func (k Kanji) MarshalJSON() ([]byte, error) {
	stats := k.Stats
	if stats == nil {
		stats = map[string]string{}
	}
	return json.Marshal([]any{
		k.Character,
		joinTokens(k.Onyomi),
		joinTokens(k.Kunyomi),
		joinTokens(k.Tags),
		nonNil(k.Meanings),
		stats,
	})
}

// Tag describes a tag referenced by terms and kanji.
type Tag struct {
	Name     string
	Category string
	Order    int16
	Notes    string
	Score    int16
}

func (g *Tag) UnmarshalJSON(data []byte) error {
	tp, err := newTuple("tag", data, 5)
	if err != nil {
		return err
	}
	var out Tag
	tp.read(0, "name", &out.Name)
	tp.read(1, "category", &out.Category)
	tp.read(2, "order", &out.Order)
	tp.read(3, "notes", &out.Notes)
	tp.read(4, "score", &out.Score)
	if tp.err != nil {
		return tp.err
	}
	*g = out
	return nil
}

func (g Tag) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{g.Name, g.Category, g.Order, g.Notes, g.Score})
}

// Meta is one entry of a kanji or term metadata bank. Subject is the kanji
// character or the term expression.
type Meta struct {
	Subject string
	// Mode is "freq" or "pitch" by convention. It is informational only and
	// plays no part in decoding Data.
	Mode string
	Data MetaData
}

func (m *Meta) UnmarshalJSON(data []byte) error {
	tp, err := newTuple("meta", data, 3)
	if err != nil {
		return err
	}
	var out Meta
	tp.read(0, "subject", &out.Subject)
	tp.read(1, "mode", &out.Mode)
	if tp.err != nil {
		return tp.err
	}
	md, err := ResolveMetaData(tp.fields[2])
	if err != nil {
		return fmt.Errorf("meta field 2 (data): %w", err)
	}
	out.Data = md
	*m = out
	return nil
}

func (m Meta) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{m.Subject, m.Mode, m.Data})
}

// tuple reads positional fields from a JSON array, keeping the first error.
type tuple struct {
	kind   string
	fields []json.RawMessage
	err    error
}

func newTuple(kind string, data []byte, n int) (*tuple, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	if len(fields) != n {
		return nil, fmt.Errorf("%s: expected %d fields, got %d", kind, n, len(fields))
	}
	return &tuple{kind: kind, fields: fields}, nil
}

var jsonNull = []byte("null")

func (t *tuple) read(i int, name string, dst any) {
	if t.err != nil {
		return
	}
	raw := t.fields[i]
	if bytes.Equal(raw, jsonNull) {
		t.err = fmt.Errorf("%s field %d (%s): unexpected null", t.kind, i, name)
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		t.err = fmt.Errorf("%s field %d (%s): %w", t.kind, i, name, err)
	}
}

// splitTokens splits a space-separated field. An empty field has no tokens.
func splitTokens(s string) []string {
	return strings.Fields(s)
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
