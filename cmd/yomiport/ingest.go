package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/japaniel/yomiport/pkg/db"
	"github.com/japaniel/yomiport/pkg/fetch"
	"github.com/japaniel/yomiport/pkg/registry"
	"github.com/japaniel/yomiport/pkg/yomichan"
)

type ingestFlags struct {
	workers  int
	parallel int
	database string
	cacheDir string
}

func newIngestCmd(a *app) *cobra.Command {
	var f ingestFlags
	cmd := &cobra.Command{
		Use:   "ingest [archive...]",
		Short: "Ingest dictionary archives",
		Long: `Ingest reads each archive, validates it and prints a one-line report.
Archives may be local paths or http(s) URLs. Without arguments the
archives listed in the config file are used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runIngest(cmd, args, f)
		},
	}
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "Members decoded concurrently per archive")
	cmd.Flags().IntVarP(&f.parallel, "parallel", "p", 0, "Archives ingested at once")
	cmd.Flags().StringVar(&f.database, "db", "", "SQLite database to store dictionaries in")
	cmd.Flags().StringVar(&f.cacheDir, "cache-dir", "", "Directory for downloaded archives")
	return cmd
}

// ingestResult is the outcome for one archive, kept in argument order.
type ingestResult struct {
	ref    string
	report *yomichan.Report
	err    error
}

func (a *app) runIngest(cmd *cobra.Command, args []string, f ingestFlags) error {
	cfg := *a.cfg
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers = f.workers
	}
	if flags.Changed("parallel") {
		cfg.Parallel = f.parallel
	}
	if flags.Changed("db") {
		cfg.Database = f.database
	}
	if flags.Changed("cache-dir") {
		cfg.CacheDir = f.cacheDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	archives := args
	if len(archives) == 0 {
		archives = cfg.Archives
	}
	if len(archives) == 0 {
		return errors.New("no archives given; pass paths or set archives in the config file")
	}

	ctx := cmd.Context()
	var store *dictStore
	if cfg.Database != "" {
		conn, err := sql.Open("sqlite3", cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer conn.Close()
		if err := db.InitDB(conn); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		a.logger.Debug("Database initialized", zap.String("path", cfg.Database))
		store = &dictStore{conn: conn, log: a.logger}
	}

	start := time.Now()
	loader := yomichan.NewLoader(yomichan.Options{Workers: cfg.Workers, Logger: a.logger})
	reg := registry.New()
	results := make([]ingestResult, len(archives))

	var g errgroup.Group
	g.SetLimit(cfg.Parallel)
	for i, ref := range archives {
		g.Go(func() error {
			report, err := ingestOne(ctx, loader, reg, store, ref, cfg.CacheDir)
			if err != nil {
				a.logger.Error("Archive failed", zap.String("archive", ref), zap.Error(err))
			}
			results[i] = ingestResult{ref: ref, report: report, err: err}
			return nil
		})
	}
	_ = g.Wait()

	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(out, "FAILED %s: %v\n", r.ref, r.err)
			continue
		}
		fmt.Fprintln(out, r.report)
	}
	fmt.Fprintf(out, "Finished! Imported %d dictionaries in %.2fs\n", reg.Len(), time.Since(start).Seconds())
	for _, name := range reg.Names() {
		if d, ok := reg.Get(name); ok {
			a.logger.Debug("Imported dictionary", zap.String("name", name), zap.Stringer("entries", d.Summary()))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d archives failed", failed, len(archives))
	}
	return nil
}

func ingestOne(ctx context.Context, loader *yomichan.Loader, reg *registry.Registry, store *dictStore, ref, cacheDir string) (*yomichan.Report, error) {
	path, err := fetch.EnsureArchive(ctx, ref, cacheDir)
	if err != nil {
		return nil, err
	}
	d, report, err := loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	report.Archive = ref
	// Registering first rejects a duplicate before it can overwrite the
	// stored copy of the first one.
	if err := reg.Add(d); err != nil {
		return nil, err
	}
	if store != nil {
		if err := store.save(ctx, d); err != nil {
			reg.Remove(registry.Name(d))
			return nil, fmt.Errorf("store %s: %w", registry.Name(d), err)
		}
	}
	return report, nil
}

// dictStore serializes saves so SQLite sees one import at a time.
type dictStore struct {
	mu   sync.Mutex
	conn *sql.DB
	log  *zap.Logger
}

func (s *dictStore) save(ctx context.Context, d *yomichan.Dictionary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := db.SaveDictionary(ctx, s.conn, d, s.log)
	return err
}
