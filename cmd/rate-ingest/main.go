// Command rate-ingest loads historical exchange-rate exports into the
// database. Input files are gzip-compressed CSVs of
// date,base,target,rate,source lines; daily exports overlap, so rows are
// deduplicated on (base, target, date) with a bloom filter before insert.
// After loading, the newest row of each pair is promoted to the active rate.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/oudhouse/pricing-engine/internal/storage/postgres"
)

const (
	bloomCapacity = 50_000_000
	bloomFPR      = 0.001
	batchSize     = 1000
	progressEvery = 1_000_000
	dateLayout    = "2006-01-02"
)

const promoteLatestSQL = `UPDATE exchange_rates SET active = TRUE
	WHERE id IN (
		SELECT DISTINCT ON (base_currency, target_currency) id
		FROM exchange_rates
		ORDER BY base_currency, target_currency, valid_from DESC
	)`

// rateRow is one parsed historical rate.
type rateRow struct {
	date   time.Time
	base   string
	target string
	value  decimal.Decimal
	source string
}

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing rate export files")
	flag.StringVar(&pattern, "pattern", "rates*.csv.gz", "glob pattern for export files")
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

	if err := run(ctx, dataDir, pattern, databaseURL); err != nil {
		slog.Error("rate ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("rate ingest completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "expand pattern")
	}
	if len(files) == 0 {
		return errors.Errorf("no files matching %s in %s", pattern, dataDir)
	}
	sort.Strings(files)

	slog.Info("parsing rate exports", slog.Int("files", len(files)))

	rows, err := parseFiles(ctx, files)
	if err != nil {
		return errors.Wrap(err, "parse exports")
	}
	if len(rows) == 0 {
		slog.Info("no new rates to insert")
		return nil
	}

	// Oldest first so the active-promotion step sees a consistent order.
	sort.Slice(rows, func(i, j int) bool { return rows[i].date.Before(rows[j].date) })

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	if err := writeRates(ctx, pool, rows); err != nil {
		return errors.Wrap(err, "write rates")
	}

	slog.Info("promoting latest rate per pair")
	if _, err := pool.Exec(ctx, promoteLatestSQL); err != nil {
		return errors.Wrap(err, "promote latest rates")
	}
	return nil
}

// dedup tracks (base, target, date) keys already accepted across all files.
// The bloom filter is shared, so access is serialized.
type dedup struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	rows   []rateRow
}

// add appends the row unless its key has been seen. Bloom false positives
// drop a real row with probability bloomFPR; acceptable for historical data.
func (d *dedup) add(key string, row rateRow) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.filter.TestAndAddString(key) {
		return
	}
	d.rows = append(d.rows, row)
}

// parseFiles streams every export concurrently, deduplicating into one
// shared set.
func parseFiles(ctx context.Context, files []string) ([]rateRow, error) {
	d := &dedup{filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR)}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, f := range files {
		g.Go(parseFile(ctx, f, d))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d.rows, nil
}

func parseFile(ctx context.Context, path string, d *dedup) func() error {
	return func() error {
		var count, kept uint64

		if err := streamGzFile(ctx, path, func(line string) error {
			count++
			if count%progressEvery == 0 {
				slog.Info("parse progress", slog.String("file", filepath.Base(path)), slog.Uint64("lines", count))
			}

			row, err := parseLine(line)
			if err != nil {
				return errors.Wrapf(err, "line %d", count)
			}
			if row == nil {
				return nil
			}
			kept++
			key := row.base + "|" + row.target + "|" + row.date.Format(dateLayout)
			d.add(key, *row)
			return nil
		}); err != nil {
			return errors.Wrapf(err, "parse %s", path)
		}

		slog.Info("parse complete",
			slog.String("file", filepath.Base(path)),
			slog.Uint64("lines", count),
			slog.Uint64("parsed", kept),
		)
		return nil
	}
}

// parseLine parses one date,base,target,rate,source line. Header and blank
// lines return nil without error.
func parseLine(line string) (*rateRow, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "date,") {
		return nil, nil
	}
	fields := strings.Split(line, ",")
	if len(fields) < 4 {
		return nil, errors.Errorf("expected at least 4 fields, got %d", len(fields))
	}

	date, err := time.Parse(dateLayout, fields[0])
	if err != nil {
		return nil, errors.Wrap(err, "parse date")
	}
	value, err := decimal.NewFromString(fields[3])
	if err != nil {
		return nil, errors.Wrap(err, "parse rate")
	}
	if !value.IsPositive() {
		return nil, errors.Errorf("non-positive rate %s", value)
	}

	source := "import"
	if len(fields) >= 5 && fields[4] != "" {
		source = fields[4]
	}
	return &rateRow{
		date:   date,
		base:   strings.ToUpper(fields[1]),
		target: strings.ToUpper(fields[2]),
		value:  value,
		source: source,
	}, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string) error) error {
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
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	return errors.Wrapf(scanner.Err(), "scan %s", path)
}

const insertHistoricalSQL = `INSERT INTO exchange_rates
	(base_currency, target_currency, rate, source, valid_from, valid_until, active)
	VALUES ($1, $2, $3, $4, $5, $6, FALSE)`

// writeRates inserts all rows as inactive history in batches.
func writeRates(ctx context.Context, pool interface {
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
}, rows []rateRow) error {
	slog.Info("writing rates to database", slog.Int("count", len(rows)))

	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))

		batch := &pgx.Batch{}
		for _, row := range rows[start:end] {
			batch.Queue(insertHistoricalSQL,
				row.base, row.target, row.value, row.source,
				row.date, row.date.Add(24*time.Hour),
			)
		}
		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrapf(err, "insert batch at %d", start)
		}

		slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(rows)))
	}
	return nil
}
