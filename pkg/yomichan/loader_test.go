package yomichan_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/japaniel/yomiport/pkg/yomichan"
	"github.com/japaniel/yomiport/pkg/yomichan/yomichantest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type file = yomichantest.File

const minimalIndex = `{"title":"T","revision":"1"}`

func index() file { return file{Name: "index.json", Body: minimalIndex} }

func writeArchive(t *testing.T, files ...file) string {
	t.Helper()
	return yomichantest.Write(t, "dict.zip", files...)
}

func TestLoadMinimalArchive(t *testing.T) {
	path := writeArchive(t,
		index(),
		file{Name: "term_bank_1.json", Body: `[["日本","にほん","","",0,["Japan"],1,""]]`},
	)

	d, report, err := yomichan.NewLoader(yomichan.Options{}).Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "T", d.Manifest().Title)
	assert.Equal(t, "1", d.Manifest().Revision)
	require.Len(t, d.Terms(), 1)
	assert.Equal(t, "日本", d.Terms()[0].Expression)
	assert.Equal(t, int16(0), d.Terms()[0].Score)
	assert.Empty(t, d.Kanji())
	assert.Empty(t, d.KanjiMeta())
	assert.Empty(t, d.TermMeta())
	assert.Empty(t, d.Tags())

	assert.Equal(t, yomichan.Summary{Terms: 1}, report.Summary)
	assert.Equal(t, path, report.Archive)
	assert.Positive(t, report.Bytes)
}

func termBank(shard, k int) string {
	rows := make([]string, k)
	for i := range rows {
		rows[i] = fmt.Sprintf(`["s%d-e%d","","","",%d,["g"],%d,""]`, shard, i, i, shard*1000+i)
	}
	return "[" + strings.Join(rows, ",") + "]"
}

func termShard(n, k int) file {
	return file{Name: fmt.Sprintf("term_bank_%d.json", n), Body: termBank(n, k)}
}

func TestLoadConcatenatesShardsInOrder(t *testing.T) {
	const shards, perShard = 4, 5
	files := []file{index()}
	for s := 1; s <= shards; s++ {
		files = append(files, termShard(s, perShard))
	}
	path := writeArchive(t, files...)

	d, _, err := yomichan.NewLoader(yomichan.Options{}).Load(context.Background(), path)
	require.NoError(t, err)

	terms := d.Terms()
	require.Len(t, terms, shards*perShard)
	for s := 1; s <= shards; s++ {
		for i := 0; i < perShard; i++ {
			got := terms[(s-1)*perShard+i].Expression
			assert.Equal(t, fmt.Sprintf("s%d-e%d", s, i), got)
		}
	}
}

func TestLoadOrdersShardsByNumber(t *testing.T) {
	// Lexicographic container order puts 10 before 2.
	path := writeArchive(t, termShard(1, 1), termShard(10, 1), termShard(2, 1), index())
	d, _, err := yomichan.NewLoader(yomichan.Options{}).Load(context.Background(), path)
	require.NoError(t, err)

	var got []string
	for _, term := range d.Terms() {
		got = append(got, term.Expression)
	}
	assert.Equal(t, []string{"s1-e0", "s2-e0", "s10-e0"}, got)
}

func TestLoadAllCollections(t *testing.T) {
	path := writeArchive(t,
		file{Name: "index.json", Body: `{"title":"Mixed","revision":"r2","version":3,"sequenced":true}`},
		file{Name: "kanji_bank_1.json", Body: `[["日","ニチ","ひ","",["sun"],{"strokes":"4"}],["本","ホン","もと","",["book"],{}]]`},
		file{Name: "kanji_meta_bank_1.json", Body: `[["日","freq",12]]`},
		file{Name: "term_meta_bank_1.json", Body: `[["日本","freq",3],["日本","pitch",{"reading":"にほん","pitches":[{"position":2}]}]]`},
		file{Name: "tag_bank_1.json", Body: `[["n","partOfSpeech",0,"noun",0]]`},
		file{Name: "tag_bank_2.json", Body: `[["P","popular",-10,"popular",10]]`},
	)
	d, report, err := yomichan.NewLoader(yomichan.Options{}).Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, uint8(3), d.Manifest().Format)
	assert.True(t, d.Manifest().Sequenced)
	assert.Len(t, d.Kanji(), 2)
	assert.Equal(t, []yomichan.Meta{{Subject: "日", Mode: "freq", Data: yomichan.Frequency(12)}}, d.KanjiMeta())
	require.Len(t, d.TermMeta(), 2)
	assert.Equal(t, yomichan.Frequency(3), d.TermMeta()[0].Data)
	assert.IsType(t, yomichan.Structured(nil), d.TermMeta()[1].Data)
	assert.Equal(t, []string{"n", "P"}, []string{d.Tags()[0].Name, d.Tags()[1].Name})
	assert.Equal(t, yomichan.Summary{Kanji: 2, KanjiMeta: 1, TermMeta: 2, Tags: 2}, report.Summary)
}

func TestLoadToleratesExtraMembers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	path := writeArchive(t,
		index(),
		file{Name: "images/cover.png", Body: "\x89PNG"},
		file{Name: "styles.css", Body: "body{}"},
		file{Name: "notes.json", Body: `{"anything":true}`},
		termShard(1, 2),
	)

	d, report, err := yomichan.NewLoader(yomichan.Options{Logger: zap.New(core)}).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, d.Terms(), 2)
	assert.Equal(t, []string{"images/cover.png", "styles.css"}, report.Skipped)
	assert.Equal(t, []string{"notes.json"}, report.Unrecognized)

	warns := logs.FilterMessage("Unrecognized member").All()
	require.Len(t, warns, 1)
	assert.Equal(t, zapcore.WarnLevel, warns[0].Level)
	assert.Equal(t, "notes.json", warns[0].ContextMap()["member"])
	assert.Equal(t, 1, logs.FilterMessage("Archive ingested").Len())
}

func TestLoadManifestMissing(t *testing.T) {
	path := writeArchive(t, termShard(1, 3))

	d, report, err := yomichan.NewLoader(yomichan.Options{}).Load(context.Background(), path)
	assert.Nil(t, d)
	assert.Nil(t, report)
	var missing *yomichan.ManifestMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, path, missing.Archive)
}

func TestLoadInvalidShardFailsWhole(t *testing.T) {
	path := writeArchive(t,
		index(),
		termShard(1, 3),
		file{Name: "term_bank_2.json", Body: `[["broken"`},
		termShard(3, 3),
	)

	for _, workers := range []int{1, 4} {
		d, _, err := yomichan.NewLoader(yomichan.Options{Workers: workers}).Load(context.Background(), path)
		assert.Nil(t, d)
		var decErr *yomichan.DecodeError
		require.ErrorAs(t, err, &decErr, "workers=%d", workers)
		assert.Equal(t, "term_bank_2.json", decErr.Member)
	}
}

func TestLoadSchemaMismatchNamesEntry(t *testing.T) {
	path := writeArchive(t,
		index(),
		file{Name: "tag_bank_1.json", Body: `[["a","b",0,"c",0],["a","b","x","c",0]]`},
	)
	_, _, err := yomichan.NewLoader(yomichan.Options{}).Load(context.Background(), path)
	var decErr *yomichan.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "tag_bank_1.json", decErr.Member)
	assert.Contains(t, err.Error(), "entry 1")
	assert.Contains(t, err.Error(), "field 2 (order)")
}

func TestLoadBadManifest(t *testing.T) {
	path := writeArchive(t, file{Name: "index.json", Body: `{"title":"T"}`})
	_, _, err := yomichan.NewLoader(yomichan.Options{}).Load(context.Background(), path)
	var decErr *yomichan.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "index.json", decErr.Member)
}

func TestLoadNullBank(t *testing.T) {
	path := writeArchive(t, index(), file{Name: "kanji_bank_1.json", Body: `null`})
	_, _, err := yomichan.NewLoader(yomichan.Options{}).Load(context.Background(), path)
	var decErr *yomichan.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "kanji_bank_1.json", decErr.Member)
}

func TestLoadDuplicateManifest(t *testing.T) {
	path := writeArchive(t,
		index(),
		file{Name: "index.json", Body: `{"title":"Other","revision":"2"}`},
	)
	_, _, err := yomichan.NewLoader(yomichan.Options{}).Load(context.Background(), path)
	require.ErrorIs(t, err, yomichan.ErrDuplicateManifest)
	var decErr *yomichan.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "index.json", decErr.Member)
}

func TestLoadArchiveOpenErrors(t *testing.T) {
	notZip := filepath.Join(t.TempDir(), "plain.zip")
	require.NoError(t, os.WriteFile(notZip, []byte("this is not a zip file"), 0o644))

	for _, path := range []string{notZip, filepath.Join(t.TempDir(), "missing.zip")} {
		_, _, err := yomichan.NewLoader(yomichan.Options{}).Load(context.Background(), path)
		var openErr *yomichan.ArchiveOpenError
		require.ErrorAs(t, err, &openErr, path)
		assert.Equal(t, path, openErr.Path)
	}
}

func TestLoadReaderFromMemory(t *testing.T) {
	data := yomichantest.Archive(t, index(), file{Name: "kanji_bank_1.json", Body: `[["日","","","",[],{}]]`})
	d, report, err := yomichan.NewLoader(yomichan.Options{}).LoadReader(context.Background(), bytes.NewReader(data), int64(len(data)), "mem")
	require.NoError(t, err)
	assert.Len(t, d.Kanji(), 1)
	assert.Equal(t, "mem", report.Archive)
}

func TestLoadCanceledContext(t *testing.T) {
	path := writeArchive(t, index(), termShard(1, 1), termShard(2, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{1, 3} {
		_, _, err := yomichan.NewLoader(yomichan.Options{Workers: workers}).Load(ctx, path)
		var decErr *yomichan.DecodeError
		require.ErrorAs(t, err, &decErr, "workers=%d", workers)
		assert.True(t, errors.Is(err, context.Canceled), "workers=%d: %v", workers, err)
	}
}

func bigArchive(t *testing.T) string {
	files := []file{index()}
	for s := 1; s <= 12; s++ {
		files = append(files,
			termShard(s, 50),
			file{Name: fmt.Sprintf("term_meta_bank_%d.json", s), Body: fmt.Sprintf(`[["s%d","freq",%d],["s%d","pitch",[%d]]]`, s, s, s, s)},
			file{Name: fmt.Sprintf("kanji_bank_%d.json", s), Body: fmt.Sprintf(`[["%c","","","",[],{}]]`, rune('一'+s))},
		)
	}
	return writeArchive(t, files...)
}

func snapshot(d *yomichan.Dictionary) map[string]any {
	return map[string]any{
		"manifest":  d.Manifest(),
		"kanji":     d.Kanji(),
		"kanjiMeta": d.KanjiMeta(),
		"terms":     d.Terms(),
		"termMeta":  d.TermMeta(),
		"tags":      d.Tags(),
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	path := bigArchive(t)
	loader := yomichan.NewLoader(yomichan.Options{})

	a, _, err := loader.Load(context.Background(), path)
	require.NoError(t, err)
	b, _, err := loader.Load(context.Background(), path)
	require.NoError(t, err)

	if diff := cmp.Diff(snapshot(a), snapshot(b)); diff != "" {
		t.Fatalf("second load differs (-first +second):\n%s", diff)
	}
}

func TestLoadParallelMatchesSequential(t *testing.T) {
	path := bigArchive(t)

	seq, _, err := yomichan.NewLoader(yomichan.Options{Workers: 1}).Load(context.Background(), path)
	require.NoError(t, err)
	for _, workers := range []int{2, 4, 16} {
		par, _, err := yomichan.NewLoader(yomichan.Options{Workers: workers}).Load(context.Background(), path)
		require.NoError(t, err)
		if diff := cmp.Diff(snapshot(seq), snapshot(par)); diff != "" {
			t.Fatalf("workers=%d differs from sequential (-seq +par):\n%s", workers, diff)
		}
	}
}

func TestSummaryString(t *testing.T) {
	assert.Equal(t, "empty", yomichan.Summary{}.String())
	assert.Equal(t, "1,204 kanji, 35 terms", yomichan.Summary{Kanji: 1204, Terms: 35}.String())
	assert.Equal(t, "1 kanji meta, 2 term meta, 3 tags", yomichan.Summary{KanjiMeta: 1, TermMeta: 2, Tags: 3}.String())
	assert.Equal(t, 6, yomichan.Summary{KanjiMeta: 1, TermMeta: 2, Tags: 3}.Total())
}

func TestReportString(t *testing.T) {
	r := &yomichan.Report{Archive: "kanjidic.zip", Summary: yomichan.Summary{Kanji: 2}, Bytes: 2048, Unrecognized: []string{"x.json"}}
	assert.Equal(t, "kanjidic.zip (2.0 kB) + 2 kanji, 1 unrecognized in 0.00s", r.String())
}
