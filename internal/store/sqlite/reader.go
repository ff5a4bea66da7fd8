package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shopspring/decimal"

	"exchange-simv1/internal/model"
)

// Reader provides read-only access to the bin archive for backfill and
// replay. Implements model.BinReader.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadBins reassembles archived bins with from <= ts <= to, ordered by
// timestamp ascending for correct replay order. Bars sharing a timestamp
// form one bin, together with that minute's FX rates.
func (r *Reader) ReadBins(from, to time.Time) ([]model.Bin, error) {
	rows, err := r.db.Query(`
		SELECT symbol, ts, currency, open, high, low, close, vwap, vwas, vwav, volume, count
		FROM equity_bars
		WHERE ts >= ? AND ts <= ?
		ORDER BY ts ASC, symbol ASC
	`, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite query equity_bars: %w", err)
	}
	defer rows.Close()

	byTS := make(map[int64]*model.Bin)
	for rows.Next() {
		var bar model.EquityBar
		var tsUnix int64
		var open, high, low, close_, vwap, vwas, vwav string
		if err := rows.Scan(&bar.Symbol, &tsUnix, &bar.Currency,
			&open, &high, &low, &close_, &vwap, &vwas, &vwav,
			&bar.Volume, &bar.Count); err != nil {
			return nil, fmt.Errorf("sqlite scan equity_bars: %w", err)
		}
		if bar.Open, err = decimal.NewFromString(open); err != nil {
			return nil, fmt.Errorf("sqlite parse open %q: %w", open, err)
		}
		if bar.High, err = decimal.NewFromString(high); err != nil {
			return nil, fmt.Errorf("sqlite parse high %q: %w", high, err)
		}
		if bar.Low, err = decimal.NewFromString(low); err != nil {
			return nil, fmt.Errorf("sqlite parse low %q: %w", low, err)
		}
		if bar.Close, err = decimal.NewFromString(close_); err != nil {
			return nil, fmt.Errorf("sqlite parse close %q: %w", close_, err)
		}
		if bar.VWAP, err = decimal.NewFromString(vwap); err != nil {
			return nil, fmt.Errorf("sqlite parse vwap %q: %w", vwap, err)
		}
		if bar.VWAS, err = decimal.NewFromString(vwas); err != nil {
			return nil, fmt.Errorf("sqlite parse vwas %q: %w", vwas, err)
		}
		if bar.VWAV, err = decimal.NewFromString(vwav); err != nil {
			return nil, fmt.Errorf("sqlite parse vwav %q: %w", vwav, err)
		}
		bar.TS = time.Unix(tsUnix, 0).UTC()

		bin, ok := byTS[tsUnix]
		if !ok {
			bin = &model.Bin{TS: bar.TS}
			byTS[tsUnix] = bin
		}
		bin.Bars = append(bin.Bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachFXRates(byTS, from, to); err != nil {
		return nil, err
	}

	bins := make([]model.Bin, 0, len(byTS))
	for _, bin := range byTS {
		bins = append(bins, *bin)
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i].TS.Before(bins[j].TS) })
	return bins, nil
}

// attachFXRates joins archived FX rates onto the bins sharing their minute.
func (r *Reader) attachFXRates(byTS map[int64]*model.Bin, from, to time.Time) error {
	rows, err := r.db.Query(`
		SELECT base, quote, ts, rate
		FROM fx_rates
		WHERE ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, from.Unix(), to.Unix())
	if err != nil {
		return fmt.Errorf("sqlite query fx_rates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fx model.FXRate
		var tsUnix int64
		var rate string
		if err := rows.Scan(&fx.Base, &fx.Quote, &tsUnix, &rate); err != nil {
			return fmt.Errorf("sqlite scan fx_rates: %w", err)
		}
		if fx.Rate, err = decimal.NewFromString(rate); err != nil {
			return fmt.Errorf("sqlite parse rate %q: %w", rate, err)
		}
		fx.TS = time.Unix(tsUnix, 0).UTC()

		if bin, ok := byTS[tsUnix]; ok {
			bin.FX = append(bin.FX, fx)
		}
	}
	return rows.Err()
}

// Close releases the database handle.
func (r *Reader) Close() error {
	return r.db.Close()
}
