// Package credit implements the relational credit store (spec §4.6):
// Credits, Benchmarks, and CreditHistory, behind a single worker
// goroutine serializing access to one *sql.DB.
//
// Grounded on original_source/src/creditdb.py for the schema, the
// coupon/maturity queries (get_all_intrest_due/get_all_mature), the
// collateral_call compare-and-decrement, and update_names (kept as
// RenameParty — spec §6 supplemented feature). sqlite3-driver shape
// grounded on gurre-prime-fix-md-go/database/marketdata.go.
package credit

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/Alessandro-Salerno/NSE-Market-System/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS benchmarks (
	id_benchmark INTEGER PRIMARY KEY AUTOINCREMENT,
	name         TEXT NOT NULL UNIQUE,
	issuer       TEXT NOT NULL,
	value_bp     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS credits (
	id_credit    INTEGER PRIMARY KEY AUTOINCREMENT,
	creditor     TEXT NOT NULL,
	debtor       TEXT NOT NULL,
	amount       TEXT NOT NULL,
	amount_due   TEXT NOT NULL,
	start_date   TEXT NOT NULL,
	duration     INTEGER NOT NULL,
	matured      INTEGER NOT NULL DEFAULT 0,
	frequency    INTEGER NOT NULL DEFAULT 7,
	spread_bp    INTEGER NOT NULL DEFAULT 0,
	collateral   TEXT NOT NULL,
	note         TEXT NOT NULL,
	id_benchmark INTEGER NOT NULL REFERENCES benchmarks(id_benchmark)
);
CREATE TABLE IF NOT EXISTS credit_history (
	id_instance INTEGER PRIMARY KEY AUTOINCREMENT,
	id_credit   INTEGER NOT NULL REFERENCES credits(id_credit),
	amount_due  TEXT NOT NULL,
	state       TEXT NOT NULL,
	day         TEXT NOT NULL
);
`

// Store is the credit/benchmark database handle.
type Store struct {
	db     *sql.DB
	worker *worker
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("credit: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("credit: init schema: %w", err)
	}
	return &Store{db: db, worker: startWorker(db)}, nil
}

func (s *Store) Close() error {
	s.worker.stop()
	return s.db.Close()
}

// AddCredit opens a new obligation (spec §4.11 newcredit), starting on
// today and with matured=0.
func (s *Store) AddCredit(c domain.Credit, today string) (int64, error) {
	var id int64
	err := s.worker.do(func(db *sql.DB) error {
		res, err := db.Exec(
			`INSERT INTO credits (creditor, debtor, amount, amount_due, start_date, duration, frequency, spread_bp, collateral, id_benchmark, note)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.Creditor, c.Debtor, c.Amount.String(), c.AmountDue.String(), today,
			c.Duration, c.Frequency, c.SpreadBP, c.Collateral.String(), c.BenchmarkID, c.Note)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *Store) RemoveCredit(id int64) error {
	return s.worker.do(func(db *sql.DB) error {
		_, err := db.Exec(`DELETE FROM credits WHERE id_credit = ?`, id)
		return err
	})
}

// AddBenchmark registers a new floating-rate reference (spec §4.11
// newbenchmark).
func (s *Store) AddBenchmark(b domain.Benchmark) (int64, error) {
	var id int64
	err := s.worker.do(func(db *sql.DB) error {
		res, err := db.Exec(
			`INSERT INTO benchmarks (name, issuer, value_bp) VALUES (?, ?, ?)`,
			b.Name, b.Issuer, b.ValueBP)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *Store) RemoveBenchmark(id int64) error {
	return s.worker.do(func(db *sql.DB) error {
		_, err := db.Exec(`DELETE FROM benchmarks WHERE id_benchmark = ?`, id)
		return err
	})
}

// SetBenchmark updates the reference rate (spec §4.11 setbenchmark).
func (s *Store) SetBenchmark(id int64, valueBP int64) error {
	return s.worker.do(func(db *sql.DB) error {
		_, err := db.Exec(`UPDATE benchmarks SET value_bp = ? WHERE id_benchmark = ?`, valueBP, id)
		return err
	})
}

func scanCredit(rows interface {
	Scan(dest ...interface{}) error
}) (domain.Credit, error) {
	var c domain.Credit
	var amount, due, collateral string
	err := rows.Scan(&c.ID, &c.Creditor, &c.Debtor, &amount, &due, &c.StartDate,
		&c.Duration, &c.Matured, &c.Frequency, &c.SpreadBP, &collateral, &c.Note, &c.BenchmarkID)
	if err != nil {
		return c, err
	}
	c.Amount, _ = decimal.NewFromString(amount)
	c.AmountDue, _ = decimal.NewFromString(due)
	c.Collateral, _ = decimal.NewFromString(collateral)
	return c, nil
}

// ListCredits returns every unmatured obligation naming username as
// creditor or debtor, ordered by debtor (spec §4.11 `positions`-style
// listing).
func (s *Store) ListCredits(username string) ([]domain.Credit, error) {
	var out []domain.Credit
	err := s.worker.do(func(db *sql.DB) error {
		rows, err := db.Query(
			`SELECT id_credit, creditor, debtor, amount, amount_due, start_date, duration, matured, frequency, spread_bp, collateral, note, id_benchmark
			 FROM credits
			 WHERE (creditor = ? OR debtor = ?) AND matured <= duration
			 ORDER BY debtor`,
			username, username)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			c, err := scanCredit(rows)
			if err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	return out, err
}

// ListBenchmarks returns every reference rate ordered by value.
func (s *Store) ListBenchmarks() ([]domain.Benchmark, error) {
	var out []domain.Benchmark
	err := s.worker.do(func(db *sql.DB) error {
		rows, err := db.Query(`SELECT id_benchmark, name, issuer, value_bp FROM benchmarks ORDER BY value_bp ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var b domain.Benchmark
			if err := rows.Scan(&b.ID, &b.Name, &b.Issuer, &b.ValueBP); err != nil {
				return err
			}
			out = append(out, b)
		}
		return rows.Err()
	})
	return out, err
}

// AdvanceMaturity advances every unmatured credit's day counter by one
// (spec §4.9 phase 4, daily settlement).
func (s *Store) AdvanceMaturity() error {
	return s.worker.do(func(db *sql.DB) error {
		_, err := db.Exec(`UPDATE credits SET matured = matured + 1 WHERE matured <= duration`)
		return err
	})
}

// RollbackAdvancement undoes AdvanceMaturity for one credit, used when
// a coupon settlement has to be retried rather than counted twice.
func (s *Store) RollbackAdvancement(id int64) error {
	return s.worker.do(func(db *sql.DB) error {
		_, err := db.Exec(`UPDATE credits SET matured = matured - 1 WHERE id_credit = ?`, id)
		return err
	})
}

// RenameParty propagates a chname rename into every Credits/Benchmarks
// row naming the old username (spec §6, original_source's
// update_names).
func (s *Store) RenameParty(oldName, newName string) error {
	return s.worker.do(func(db *sql.DB) error {
		if _, err := db.Exec(`UPDATE credits SET creditor = ? WHERE creditor = ?`, newName, oldName); err != nil {
			return err
		}
		if _, err := db.Exec(`UPDATE credits SET debtor = ? WHERE debtor = ?`, newName, oldName); err != nil {
			return err
		}
		_, err := db.Exec(`UPDATE benchmarks SET issuer = ? WHERE issuer = ?`, newName, oldName)
		return err
	})
}

// DueForCoupon returns every credit whose matured day count lands on a
// coupon date (matured % frequency == 0), joined with its benchmark's
// current rate (spec §4.9 phase 4 coupon processing).
func (s *Store) DueForCoupon() ([]domain.Credit, []int64, error) {
	var credits []domain.Credit
	var benchmarkValues []int64
	err := s.worker.do(func(db *sql.DB) error {
		rows, err := db.Query(
			`SELECT a.id_credit, a.creditor, a.debtor, a.amount, a.amount_due, a.start_date, a.duration, a.matured, a.frequency, a.spread_bp, a.collateral, a.note, a.id_benchmark, b.value_bp
			 FROM credits a
			 INNER JOIN benchmarks b ON a.id_benchmark = b.id_benchmark
			 WHERE a.matured > 0 AND (a.matured % a.frequency) = 0 AND a.matured <= a.duration`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c domain.Credit
			var amount, due, collateral string
			var benchmarkValue int64
			if err := rows.Scan(&c.ID, &c.Creditor, &c.Debtor, &amount, &due, &c.StartDate,
				&c.Duration, &c.Matured, &c.Frequency, &c.SpreadBP, &collateral, &c.Note, &c.BenchmarkID, &benchmarkValue); err != nil {
				return err
			}
			c.Amount, _ = decimal.NewFromString(amount)
			c.AmountDue, _ = decimal.NewFromString(due)
			c.Collateral, _ = decimal.NewFromString(collateral)
			credits = append(credits, c)
			benchmarkValues = append(benchmarkValues, benchmarkValue)
		}
		return rows.Err()
	})
	return credits, benchmarkValues, err
}

// DueForMaturity returns every credit reaching the end of its term
// (matured == duration) (spec §4.9 phase 5 maturity processing).
func (s *Store) DueForMaturity() ([]domain.Credit, error) {
	var out []domain.Credit
	err := s.worker.do(func(db *sql.DB) error {
		rows, err := db.Query(
			`SELECT id_credit, creditor, debtor, amount, amount_due, start_date, duration, matured, frequency, spread_bp, collateral, note, id_benchmark
			 FROM credits WHERE matured = duration`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			c, err := scanCredit(rows)
			if err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	return out, err
}

// CollateralCall debits amountDue worth of posted collateral from a
// credit, returning false without modifying anything if the posted
// collateral can't cover it (original_source's collateral_call: a
// compare-then-decrement, run as one job on the store's single worker
// so no concurrent call can race the check).
func (s *Store) CollateralCall(id int64, amountDue decimal.Decimal) (bool, error) {
	var ok bool
	err := s.worker.do(func(db *sql.DB) error {
		var collateralStr string
		if err := db.QueryRow(`SELECT collateral FROM credits WHERE id_credit = ?`, id).Scan(&collateralStr); err != nil {
			return err
		}
		collateral, err := decimal.NewFromString(collateralStr)
		if err != nil {
			return err
		}
		if collateral.LessThan(amountDue) {
			ok = false
			return nil
		}
		remaining := collateral.Sub(amountDue)
		if _, err := db.Exec(`UPDATE credits SET collateral = ? WHERE id_credit = ?`, remaining.String(), id); err != nil {
			return err
		}
		ok = true
		return nil
	})
	return ok, err
}

// AddHistory records one coupon or maturity outcome (spec §4.9).
func (s *Store) AddHistory(creditID int64, amountDue decimal.Decimal, state domain.CreditState, day string) error {
	return s.worker.do(func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO credit_history (id_credit, amount_due, state, day) VALUES (?, ?, ?, ?)`,
			creditID, amountDue.String(), string(state), day)
		return err
	})
}
