package yomichan

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Report describes one ingestion. It is informational and not part of the
// Dictionary.
type Report struct {
	Archive string
	Summary Summary
	// Skipped lists non-JSON members such as images.
	Skipped []string
	// Unrecognized lists JSON members with no known role.
	Unrecognized []string
	Bytes        int64
	Elapsed      time.Duration
}

// String renders the report as a single line, e.g.
// "jmdict_english.zip (16 MB) + 1,204 kanji, 35 terms in 0.42s".
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) + %s", r.Archive, humanize.Bytes(uint64(r.Bytes)), r.Summary)
	if n := len(r.Unrecognized); n > 0 {
		fmt.Fprintf(&b, ", %d unrecognized", n)
	}
	fmt.Fprintf(&b, " in %.2fs", r.Elapsed.Seconds())
	return b.String()
}
