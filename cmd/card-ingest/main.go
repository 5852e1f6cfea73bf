// Command card-ingest loads campus card numbers into the holders table from
// gzip-compressed registry dumps. A card number is accepted only when it
// appears in at least two dump files, which filters out the typos and stale
// entries each registry export is known to carry. The cross-file check uses
// per-file bloom filters so the dumps never need to fit in memory at once.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/canteenhq/mealpass/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	numFiles      = 3
	progressEvery = 1_000_000
	minCardLen    = 8
	maxCardLen    = 16
)

// fileResult holds candidate card numbers found in a single file during pass 2.
type fileResult struct {
	candidates map[string]uint
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing cardbaseN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("card ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("card ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files := make([]string, numFiles)
	for i := range numFiles {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("cardbase%d.gz", i+1))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	// Pass 1: build bloom filters concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", numFiles))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: find card numbers appearing in 2+ files.
	slog.Info("pass 2: finding candidate cards")

	validCards, err := findValidCards(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find valid cards")
	}

	slog.Info("valid cards found", slog.Int("count", len(validCards)))

	if len(validCards) == 0 {
		slog.Info("no valid cards to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeHolders(ctx, pool, validCards); err != nil {
		return errors.Wrap(err, "write holders to database")
	}

	return nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFile(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(card string) {
			if len(card) >= minCardLen && len(card) <= maxCardLen {
				filter.AddString(card)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress",
						slog.Int("file", idx+1),
						slog.Uint64("cards", count),
					)
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for file %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_cards", count),
		)

		filters[idx] = filter
		return nil
	}
}

// findValidCards re-streams each file and checks card numbers against OTHER
// files' bloom filters. A card is valid if it appears in 2 or more files.
func findValidCards(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]int, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(findCandidatesInFile(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge bitmasks from all files.
	merged := make(map[string]uint)
	for _, r := range results {
		for card, mask := range r.candidates {
			merged[card] |= mask
		}
	}

	// Keep cards appearing in 2+ files, recording how many for audit.
	valid := make(map[string]int)
	for card, mask := range merged {
		if n := bits.OnesCount(mask); n >= 2 {
			valid[card] = n
		}
	}

	return valid, nil
}

func findCandidatesInFile(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		candidates := make(map[string]uint)
		fileBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFile(ctx, path, func(card string) {
			if len(card) < minCardLen || len(card) > maxCardLen {
				return
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("file", idx+1),
					slog.Uint64("cards", count),
				)
			}

			// Check if this card appears in any OTHER file's bloom filter.
			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(card) {
					candidates[card] |= fileBit
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan file %d for candidates", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_cards", count),
			slog.Int("candidates", len(candidates)),
		)

		results[idx] = fileResult{candidates: candidates}
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(card string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

const upsertHolderSQL = `INSERT INTO holders (card_no, source_files)
VALUES ($1, $2)
ON CONFLICT (card_no) DO UPDATE SET
	source_files = EXCLUDED.source_files,
	ingested_at = now()`

// writeHolders upserts all accepted card numbers into the database.
func writeHolders(ctx context.Context, pool *pgxpool.Pool, cards map[string]int) error {
	slog.Info("writing holders to database", slog.Int("count", len(cards)))

	written := 0
	for card, sources := range cards {
		if _, err := pool.Exec(ctx, upsertHolderSQL, card, sources); err != nil {
			return errors.Wrapf(err, "upsert holder %s", card)
		}

		written++
		if written%100 == 0 || written == len(cards) {
			slog.Info("write progress", slog.Int("written", written), slog.Int("total", len(cards)))
		}
	}

	return nil
}
