// Package history implements the append-only relational history store
// (spec §4.5): AssetIntraday, AssetDaily, UserDaily, and Payments
// tables, with a single worker goroutine serializing every read and
// write against the one *sql.DB connection.
//
// Grounded on gurre-prime-fix-md-go/database/marketdata.go for the
// sqlite3-driver-plus-prepared-statement shape, and on
// original_source/src/historydb.py for the table/query surface
// (including update_ticker, the rename cascade kept as RenameTicker —
// spec §6 supplemented feature).
package history

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS asset_intraday (
	ticker TEXT NOT NULL,
	day    TEXT NOT NULL,
	time   TEXT NOT NULL,
	bid    TEXT,
	ask    TEXT,
	mid    TEXT
);
CREATE TABLE IF NOT EXISTS asset_daily (
	ticker      TEXT NOT NULL,
	day         TEXT NOT NULL,
	buy_vol     INTEGER NOT NULL,
	sell_vol    INTEGER NOT NULL,
	traded_value TEXT NOT NULL,
	open        TEXT,
	close       TEXT
);
CREATE TABLE IF NOT EXISTS user_daily (
	username TEXT NOT NULL,
	day      TEXT NOT NULL,
	balance  TEXT NOT NULL,
	assets   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS payments (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	sender   TEXT NOT NULL,
	receiver TEXT NOT NULL,
	amount   TEXT NOT NULL,
	currency TEXT NOT NULL,
	day      TEXT NOT NULL,
	time     TEXT NOT NULL,
	category TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_asset_intraday_ticker_day ON asset_intraday(ticker, day);
CREATE INDEX IF NOT EXISTS idx_asset_daily_ticker_day ON asset_daily(ticker, day);
CREATE INDEX IF NOT EXISTS idx_user_daily_username_day ON user_daily(username, day);
`

// IntradayRow is one AssetIntraday tick.
type IntradayRow struct {
	Ticker, Day, Time string
	Bid, Ask, Mid     *decimal.Decimal
}

// DailyRow is one AssetDaily bar.
type DailyRow struct {
	Ticker      string
	Day         string
	BuyVolume   int64
	SellVolume  int64
	TradedValue decimal.Decimal
	Open        *decimal.Decimal
	Close       *decimal.Decimal
}

// UserDailyRow is one UserDaily settlement snapshot.
type UserDailyRow struct {
	Username string
	Day      string
	Balance  decimal.Decimal
	AssetsJSON string
}

// PaymentRow is one Payments entry.
type PaymentRow struct {
	ID                int64
	Sender, Receiver  string
	Amount            decimal.Decimal
	Currency          string
	Day, Time         string
	Category          string
}

// Store is the append/query handle. All methods are safe for
// concurrent use: each blocks on the worker goroutine (worker.go)
// rather than sharing db across threads.
type Store struct {
	db     *sql.DB
	worker *worker
	logger *zap.Logger
}

func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	s := &Store{db: db, logger: logger}
	s.worker = startWorker(db)
	return s, nil
}

func (s *Store) Close() error {
	s.worker.stop()
	return s.db.Close()
}

func decStr(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseDecPtr(s sql.NullString) *decimal.Decimal {
	if !s.Valid {
		return nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil
	}
	return &d
}

// AppendIntraday inserts one AssetIntraday tick (spec §4.10 scheduler).
func (s *Store) AppendIntraday(row IntradayRow) error {
	return s.worker.do(func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO asset_intraday (ticker, day, time, bid, ask, mid) VALUES (?, ?, ?, ?, ?, ?)`,
			row.Ticker, row.Day, row.Time, decStr(row.Bid), decStr(row.Ask), decStr(row.Mid))
		return err
	})
}

// AppendDaily inserts one AssetDaily bar (spec §4.9 phase 2).
func (s *Store) AppendDaily(row DailyRow) error {
	return s.worker.do(func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO asset_daily (ticker, day, buy_vol, sell_vol, traded_value, open, close) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			row.Ticker, row.Day, row.BuyVolume, row.SellVolume, row.TradedValue.String(), decStr(row.Open), decStr(row.Close))
		return err
	})
}

// AppendUserDaily inserts one UserDaily row (spec §4.9 phase 1).
func (s *Store) AppendUserDaily(row UserDailyRow) error {
	return s.worker.do(func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO user_daily (username, day, balance, assets) VALUES (?, ?, ?, ?)`,
			row.Username, row.Day, row.Balance.String(), row.AssetsJSON)
		return err
	})
}

// AppendPayment inserts one Payments row (spec §4.11 pay/transfer).
func (s *Store) AppendPayment(row PaymentRow) (int64, error) {
	var id int64
	err := s.worker.do(func(db *sql.DB) error {
		res, err := db.Exec(
			`INSERT INTO payments (sender, receiver, amount, currency, day, time, category) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			row.Sender, row.Receiver, row.Amount.String(), row.Currency, row.Day, row.Time, row.Category)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// Intraday returns every tick for (ticker, day).
func (s *Store) Intraday(ticker, day string) ([]IntradayRow, error) {
	var out []IntradayRow
	err := s.worker.do(func(db *sql.DB) error {
		rows, err := db.Query(
			`SELECT ticker, day, time, bid, ask, mid FROM asset_intraday WHERE ticker = ? AND day = ? ORDER BY time`,
			ticker, day)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r IntradayRow
			var bid, ask, mid sql.NullString
			if err := rows.Scan(&r.Ticker, &r.Day, &r.Time, &bid, &ask, &mid); err != nil {
				return err
			}
			r.Bid, r.Ask, r.Mid = parseDecPtr(bid), parseDecPtr(ask), parseDecPtr(mid)
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

// DailyRange returns every AssetDaily bar for ticker between start and
// end (inclusive, "YYYY-MM-DD" lexical comparison).
func (s *Store) DailyRange(ticker, start, end string) ([]DailyRow, error) {
	var out []DailyRow
	err := s.worker.do(func(db *sql.DB) error {
		rows, err := db.Query(
			`SELECT ticker, day, buy_vol, sell_vol, traded_value, open, close FROM asset_daily
			 WHERE ticker = ? AND day BETWEEN ? AND ? ORDER BY day`,
			ticker, start, end)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r DailyRow
			var tv string
			var open, close sql.NullString
			if err := rows.Scan(&r.Ticker, &r.Day, &r.BuyVolume, &r.SellVolume, &tv, &open, &close); err != nil {
				return err
			}
			r.TradedValue, _ = decimal.NewFromString(tv)
			r.Open, r.Close = parseDecPtr(open), parseDecPtr(close)
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

// UserOnDay returns the UserDaily row for username on day, if any.
func (s *Store) UserOnDay(username, day string) (*UserDailyRow, error) {
	var row *UserDailyRow
	err := s.worker.do(func(db *sql.DB) error {
		var r UserDailyRow
		var balance string
		err := db.QueryRow(
			`SELECT username, day, balance, assets FROM user_daily WHERE username = ? AND day = ?`,
			username, day).Scan(&r.Username, &r.Day, &balance, &r.AssetsJSON)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		r.Balance, _ = decimal.NewFromString(balance)
		row = &r
		return nil
	})
	return row, err
}

// UserBetween returns every UserDaily row for username between start
// and end.
func (s *Store) UserBetween(username, start, end string) ([]UserDailyRow, error) {
	var out []UserDailyRow
	err := s.worker.do(func(db *sql.DB) error {
		rows, err := db.Query(
			`SELECT username, day, balance, assets FROM user_daily
			 WHERE username = ? AND day BETWEEN ? AND ? ORDER BY day`,
			username, start, end)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r UserDailyRow
			var balance string
			if err := rows.Scan(&r.Username, &r.Day, &balance, &r.AssetsJSON); err != nil {
				return err
			}
			r.Balance, _ = decimal.NewFromString(balance)
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

// RenameTicker renumbers every history row referencing a ticker that
// an admin just renamed (spec §6, original_source's update_ticker).
func (s *Store) RenameTicker(from, to string) error {
	return s.worker.do(func(db *sql.DB) error {
		if _, err := db.Exec(`UPDATE asset_intraday SET ticker = ? WHERE ticker = ?`, to, from); err != nil {
			return err
		}
		_, err := db.Exec(`UPDATE asset_daily SET ticker = ? WHERE ticker = ?`, to, from)
		return err
	})
}

// RenameUser propagates a chname rename into user_daily and payments.
func (s *Store) RenameUser(from, to string) error {
	return s.worker.do(func(db *sql.DB) error {
		if _, err := db.Exec(`UPDATE user_daily SET username = ? WHERE username = ?`, to, from); err != nil {
			return err
		}
		if _, err := db.Exec(`UPDATE payments SET sender = ? WHERE sender = ?`, to, from); err != nil {
			return err
		}
		_, err := db.Exec(`UPDATE payments SET receiver = ? WHERE receiver = ?`, to, from)
		return err
	})
}
