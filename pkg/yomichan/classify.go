package yomichan

import (
	"strconv"
	"strings"
)

// Role is the part a member file plays inside a dictionary archive.
type Role int

const (
	// RoleSkipped marks non-JSON members (images, stylesheets) that are ignored.
	RoleSkipped Role = iota
	// RoleUnrecognized marks JSON members that match no known name.
	RoleUnrecognized
	RoleManifest
	RoleKanji
	RoleKanjiMeta
	RoleTerm
	RoleTermMeta
	RoleTag
)

func (r Role) String() string {
	switch r {
	case RoleSkipped:
		return "skipped"
	case RoleUnrecognized:
		return "unrecognized"
	case RoleManifest:
		return "manifest"
	case RoleKanji:
		return "kanji"
	case RoleKanjiMeta:
		return "kanji meta"
	case RoleTerm:
		return "term"
	case RoleTermMeta:
		return "term meta"
	case RoleTag:
		return "tag"
	}
	return "unknown"
}

// ManifestName is the member name of the dictionary index.
const ManifestName = "index.json"

const jsonSuffix = ".json"

// shardPrefixes is checked in order. A meta prefix must come before any
// shorter prefix it could be confused with.
var shardPrefixes = []struct {
	prefix string
	role   Role
}{
	{"kanji_meta_bank_", RoleKanjiMeta},
	{"kanji_bank_", RoleKanji},
	{"term_meta_bank_", RoleTermMeta},
	{"term_bank_", RoleTerm},
	{"tag_bank_", RoleTag},
}

// Classify maps an archive member name to its role.
func Classify(name string) Role {
	if !strings.HasSuffix(name, jsonSuffix) {
		return RoleSkipped
	}
	if name == ManifestName {
		return RoleManifest
	}
	for _, p := range shardPrefixes {
		if strings.HasPrefix(name, p.prefix) {
			return p.role
		}
	}
	return RoleUnrecognized
}

// ShardNumber returns the number between a shard prefix and the .json
// suffix, e.g. 12 for "term_bank_12.json". ok is false for non-shard names
// and for shards without a plain decimal suffix.
func ShardNumber(name string) (n int, ok bool) {
	if !strings.HasSuffix(name, jsonSuffix) {
		return 0, false
	}
	for _, p := range shardPrefixes {
		if !strings.HasPrefix(name, p.prefix) {
			continue
		}
		digits := strings.TrimSuffix(strings.TrimPrefix(name, p.prefix), jsonSuffix)
		v, err := strconv.Atoi(digits)
		if err != nil || digits[0] < '0' || digits[0] > '9' {
			return 0, false
		}
		return v, true
	}
	return 0, false
}
