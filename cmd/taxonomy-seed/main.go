// Command taxonomy-seed loads a YAML list of categories into the store.
// Entries are matched by slug: missing slugs are created, parents are
// linked by slug, and existing rows are left alone unless --update-names
// is given. The whole file is applied in one transaction.
//
//	taxonomy-seed --file categories.yaml [--dry-run] [--update-names]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"taxonomy/internal/config"
	"taxonomy/internal/database"
	"taxonomy/internal/store"
	"taxonomy/internal/taxonomy"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var (
		filePath    string
		dryRun      bool
		updateNames bool
	)
	flagSet := pflag.NewFlagSet("taxonomy-seed", pflag.ContinueOnError)
	flagSet.StringVarP(&filePath, "file", "f", "", "YAML seed file (- for stdin)")
	flagSet.BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
	flagSet.BoolVar(&updateNames, "update-names", false, "refresh names of existing slugs and re-activate them")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if filePath == "" {
		return fmt.Errorf("--file is required")
	}

	entries, err := readSeed(filePath)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if cfg.StoreDriver == config.DriverMemory && !dryRun {
		slog.Warn("STORE_DRIVER=memory: seeded categories are discarded on exit")
	}

	var categoryStore taxonomy.Store
	if cfg.StoreDriver == config.DriverMemory {
		categoryStore = store.NewMemoryStore()
	} else {
		db, err := database.Connect(cfg.DSN())
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.Migrate(db); err != nil {
			return err
		}
		categoryStore = store.NewCategoryStore(db)
	}

	svc := taxonomy.NewService(categoryStore, taxonomy.Options{
		Locale:     cfg.Locale,
		MaxDepth:   cfg.MaxDepth,
		MaxRetries: uint64(cfg.MaxRetries),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := svc.Seed(ctx, entries, taxonomy.SeedOptions{DryRun: dryRun, UpdateNames: updateNames})
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func readSeed(path string) ([]taxonomy.SeedEntry, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open seed file: %w", err)
		}
		defer f.Close()
		r = f
	}

	entries, err := taxonomy.ParseSeed(r)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: no categories", path)
	}
	return entries, nil
}
