package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"exchange-simv1/internal/model"
)

const (
	defaultBatchSize  = 32
	defaultFlushDelay = 500 * time.Millisecond
)

// WriterConfig configures the SQLite bin archive writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/bins.db"
}

// Writer is a single-goroutine SQLite archive writer with transaction
// batching. Every bin received from the feed is archived before/while it
// is processed, so replay can backfill any gap the engine later detects.
type Writer struct {
	db *sql.DB

	// OnCommit is called after each committed batch (optional metrics hook).
	OnCommit func(bins int, d time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened bin archive at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

// Decimal columns are stored as TEXT so archived prices round-trip
// without floating-point drift.
func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS equity_bars (
			symbol   TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			currency TEXT    NOT NULL,
			open     TEXT    NOT NULL,
			high     TEXT    NOT NULL,
			low      TEXT    NOT NULL,
			close    TEXT    NOT NULL,
			vwap     TEXT    NOT NULL,
			vwas     TEXT    NOT NULL,
			vwav     TEXT    NOT NULL,
			volume   INTEGER,
			count    INTEGER,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS fx_rates (
			base  TEXT    NOT NULL,
			quote TEXT    NOT NULL,
			ts    INTEGER NOT NULL,
			rate  TEXT    NOT NULL,
			PRIMARY KEY (base, quote, ts)
		);
	`)
	return err
}

// Run reads bins from binCh and inserts them in batched transactions.
// Flushes every batchSize bins OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or binCh is closed.
func (w *Writer) Run(ctx context.Context, binCh <-chan model.Bin) {
	batch := make([]model.Bin, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else if w.OnCommit != nil {
			w.OnCommit(len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case bin, ok := <-binCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, bin)
			if len(batch) >= defaultBatchSize {
				flush()
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch writes all bars and FX rates of the batch in one transaction.
func (w *Writer) insertBatch(batch []model.Bin) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	barStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO equity_bars
		(symbol, ts, currency, open, high, low, close, vwap, vwas, vwav, volume, count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite prepare bars: %w", err)
	}
	defer barStmt.Close()

	fxStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO fx_rates (base, quote, ts, rate)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite prepare fx: %w", err)
	}
	defer fxStmt.Close()

	for _, bin := range batch {
		for _, bar := range bin.Bars {
			_, err := barStmt.Exec(bar.Symbol, bar.TS.Unix(), bar.Currency,
				bar.Open.String(), bar.High.String(), bar.Low.String(), bar.Close.String(),
				bar.VWAP.String(), bar.VWAS.String(), bar.VWAV.String(),
				bar.Volume, bar.Count)
			if err != nil {
				return fmt.Errorf("sqlite insert bar %s@%s: %w", bar.Symbol, bar.TS, err)
			}
		}
		for _, fx := range bin.FX {
			if _, err := fxStmt.Exec(fx.Base, fx.Quote, fx.TS.Unix(), fx.Rate.String()); err != nil {
				return fmt.Errorf("sqlite insert fx %s: %w", fx.Pair(), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (w *Writer) Close() error {
	return w.db.Close()
}
