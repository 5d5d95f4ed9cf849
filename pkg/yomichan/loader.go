package yomichan

import (
	"archive/zip"
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Options configures a Loader.
type Options struct {
	// Workers is the number of goroutines decoding members. Values below 2
	// decode sequentially.
	Workers int
	// Logger receives per-member and per-archive messages. nil disables logging.
	Logger *zap.Logger
}

// Loader turns dictionary archives into Dictionary values. A Loader holds no
// per-archive state and can be used for several archives at once.
type Loader struct {
	workers int
	log     *zap.Logger
}

// NewLoader creates a Loader.
func NewLoader(opts Options) *Loader {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Loader{workers: workers, log: logger}
}

// Load reads the archive at path.
func (l *Loader) Load(ctx context.Context, path string) (*Dictionary, *Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, &ArchiveOpenError{Path: path, Err: err}
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, nil, &ArchiveOpenError{Path: path, Err: err}
	}
	return l.LoadReader(ctx, f, fi.Size(), path)
}

// member is a classified archive entry that needs decoding.
type member struct {
	file *zip.File
	role Role
}

// decoded holds one member's content. Only the field matching the member's
// role is set.
type decoded struct {
	manifest *Manifest
	kanji    []Kanji
	meta     []Meta
	terms    []Term
	tags     []Tag
	err      error
}

var errNotDecoded = errors.New("member was not decoded")

// LoadReader reads a zip archive of the given size from r. name is used in
// errors, logs and the report.
func (l *Loader) LoadReader(ctx context.Context, r io.ReaderAt, size int64, name string) (*Dictionary, *Report, error) {
	start := time.Now()
	log := l.log.With(zap.String("archive", name))

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, nil, &ArchiveOpenError{Path: name, Err: err}
	}

	report := &Report{Archive: name, Bytes: size}
	var members []member
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		switch role := Classify(f.Name); role {
		case RoleSkipped:
			log.Debug("Skipping non-JSON member", zap.String("member", f.Name))
			report.Skipped = append(report.Skipped, f.Name)
		case RoleUnrecognized:
			log.Warn("Unrecognized member", zap.String("member", f.Name))
			report.Unrecognized = append(report.Unrecognized, f.Name)
		default:
			members = append(members, member{file: f, role: role})
		}
	}

	slices.SortStableFunc(members, compareMembers)

	var results []decoded
	if l.workers > 1 && len(members) > 1 {
		results = l.decodeParallel(ctx, members)
	} else {
		results = l.decodeSequential(ctx, members)
	}

	d, err := assemble(name, members, results)
	if err != nil {
		return nil, nil, err
	}

	report.Summary = d.Summary()
	report.Elapsed = time.Since(start)
	log.Info("Archive ingested",
		zap.String("title", d.manifest.Title),
		zap.String("revision", d.manifest.Revision),
		zap.Int("kanji", report.Summary.Kanji),
		zap.Int("kanji_meta", report.Summary.KanjiMeta),
		zap.Int("terms", report.Summary.Terms),
		zap.Int("term_meta", report.Summary.TermMeta),
		zap.Int("tags", report.Summary.Tags),
		zap.Int("unrecognized", len(report.Unrecognized)),
		zap.Duration("elapsed", report.Elapsed))
	return d, report, nil
}

// compareMembers groups members by role and orders each role's shards by
// number. Shards without a number follow the numbered ones. The sort is
// stable, so ties keep archive order.
func compareMembers(a, b member) int {
	if c := cmp.Compare(a.role, b.role); c != 0 {
		return c
	}
	an, aok := ShardNumber(a.file.Name)
	bn, bok := ShardNumber(b.file.Name)
	switch {
	case aok && bok:
		return cmp.Compare(an, bn)
	case aok:
		return -1
	case bok:
		return 1
	}
	return 0
}

func (l *Loader) decodeSequential(ctx context.Context, members []member) []decoded {
	results := make([]decoded, len(members))
	for i := range results {
		results[i].err = errNotDecoded
	}
	for i, m := range members {
		if err := ctx.Err(); err != nil {
			results[i].err = err
			break
		}
		results[i] = decodeMember(m)
		l.log.Debug("Decoded member", zap.String("member", m.file.Name), zap.Stringer("role", m.role))
		if results[i].err != nil {
			break
		}
	}
	return results
}

// decodeParallel decodes members on a worker pool. Each job writes only its
// own slot, and once a member fails no member after it is started, so the
// first failure in member order is the same one the sequential path finds.
func (l *Loader) decodeParallel(ctx context.Context, members []member) []decoded {
	results := make([]decoded, len(members))
	for i := range results {
		results[i].err = errNotDecoded
	}

	var failedAt atomic.Int64
	failedAt.Store(math.MaxInt64)
	markFailed := func(i int64) {
		for {
			cur := failedAt.Load()
			if i >= cur || failedAt.CompareAndSwap(cur, i) {
				return
			}
		}
	}

	pool := NewWorkerPool(l.workers, len(members))
	pool.Start(ctx)
	for i, m := range members {
		err := pool.SubmitCtx(ctx, func(ctx context.Context) error {
			if int64(i) > failedAt.Load() {
				return nil
			}
			if err := ctx.Err(); err != nil {
				results[i].err = err
				return err
			}
			results[i] = decodeMember(m)
			l.log.Debug("Decoded member", zap.String("member", m.file.Name), zap.Stringer("role", m.role))
			if results[i].err != nil {
				markFailed(int64(i))
			}
			return results[i].err
		})
		if err != nil {
			break
		}
	}
	pool.Close()

	// Jobs dropped by a canceled pool never ran.
	if err := ctx.Err(); err != nil {
		for i := range results {
			if results[i].err == errNotDecoded {
				results[i].err = err
			}
		}
	}
	return results
}

func decodeMember(m member) decoded {
	data, err := readMember(m.file)
	if err != nil {
		return decoded{err: err}
	}
	var out decoded
	switch m.role {
	case RoleManifest:
		var mf Manifest
		if err := json.Unmarshal(data, &mf); err != nil {
			out.err = err
		} else {
			out.manifest = &mf
		}
	case RoleKanji:
		out.kanji, out.err = decodeBank[Kanji](data)
	case RoleKanjiMeta, RoleTermMeta:
		out.meta, out.err = decodeBank[Meta](data)
	case RoleTerm:
		out.terms, out.err = decodeBank[Term](data)
	case RoleTag:
		out.tags, out.err = decodeBank[Tag](data)
	default:
		out.err = fmt.Errorf("no decoder for role %s", m.role)
	}
	return out
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open member: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read member: %w", err)
	}
	return data, nil
}

// decodeBank decodes a shard holding a JSON array of entries, reporting the
// index of the first entry that does not fit the schema.
func decodeBank[T any](data []byte) ([]T, error) {
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		return nil, errors.New("bank is null, expected an array")
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]T, len(raw))
	for i := range raw {
		if err := json.Unmarshal(raw[i], &out[i]); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return out, nil
}

// assemble merges decoded members in archive order.
func assemble(archive string, members []member, results []decoded) (*Dictionary, error) {
	d := &Dictionary{}
	haveManifest := false
	for i, m := range members {
		res := results[i]
		if res.err != nil {
			return nil, &DecodeError{Member: m.file.Name, Err: res.err}
		}
		switch m.role {
		case RoleManifest:
			if haveManifest {
				return nil, &DecodeError{Member: m.file.Name, Err: ErrDuplicateManifest}
			}
			d.manifest = *res.manifest
			haveManifest = true
		case RoleKanji:
			d.kanji = append(d.kanji, res.kanji...)
		case RoleKanjiMeta:
			d.kanjiMeta = append(d.kanjiMeta, res.meta...)
		case RoleTerm:
			d.terms = append(d.terms, res.terms...)
		case RoleTermMeta:
			d.termMeta = append(d.termMeta, res.meta...)
		case RoleTag:
			d.tags = append(d.tags, res.tags...)
		}
	}
	if !haveManifest {
		return nil, &ManifestMissingError{Archive: archive}
	}
	return d, nil
}
