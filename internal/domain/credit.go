package domain

import "github.com/shopspring/decimal"

// CreditState is the outcome of a single coupon or maturity settlement.
type CreditState string

const (
	CreditStateCash       CreditState = "CASH"
	CreditStateCollateral CreditState = "COLLATERAL"
	CreditStateDefault    CreditState = "DEFAULT"
)

// Benchmark is a named floating-rate reference (spec §3).
type Benchmark struct {
	ID     int64
	Name   string
	Issuer string
	ValueBP int64 // basis points
}

// Credit is a bilateral interest-bearing obligation (spec §3).
type Credit struct {
	ID           int64
	Creditor     string
	Debtor       string
	Amount       decimal.Decimal
	AmountDue    decimal.Decimal
	StartDate    string
	Duration     int64 // days
	Matured      int64 // days advanced
	Frequency    int64 // coupon period, in days
	SpreadBP     int64
	Collateral   decimal.Decimal
	BenchmarkID  int64
	Note         string
}

// CreditHistoryRow records one coupon period's outcome.
type CreditHistoryRow struct {
	ID        int64
	CreditID  int64
	AmountDue decimal.Decimal
	State     CreditState
	Day       string
}
