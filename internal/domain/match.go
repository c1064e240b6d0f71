package domain

import (
	"strings"
)

// MatchPolicy decides which fields identify a transaction during reconciliation.
type MatchPolicy string

const (
	// MatchDateAmount treats two rows with the same date and amount as the same
	// transaction. Two genuine purchases of equal value on one day collapse into one.
	MatchDateAmount MatchPolicy = "date_amount"

	// MatchDateAmountMerchant additionally requires the merchant to match.
	MatchDateAmountMerchant MatchPolicy = "date_amount_merchant"
)

// Valid reports whether p is a known policy.
func (p MatchPolicy) Valid() bool {
	return p == MatchDateAmount || p == MatchDateAmountMerchant
}

// Order sorts transactions newest first. Under the merchant policy rows of one
// day are grouped by merchant before amount, so amounts within AmountTolerance
// of each other are adjacent within a merchant. Larger amounts come first. It
// is a strict total order suitable for slices.SortStableFunc.
func (p MatchPolicy) Order(a, b Transaction) int {
	if c := compareDatesDesc(a, b); c != 0 {
		return c
	}
	if p == MatchDateAmountMerchant {
		if c := strings.Compare(merchantKey(a.Merchant), merchantKey(b.Merchant)); c != 0 {
			return c
		}
	}
	return b.Amount.Cmp(a.Amount)
}

// Compare positions a relative to b in the order produced by Order, except that
// amounts within AmountTolerance compare equal. It returns 0 when a and b are the
// same transaction under p, a negative value when a sorts first.
func (p MatchPolicy) Compare(a, b Transaction) int {
	if c := compareDatesDesc(a, b); c != 0 {
		return c
	}
	if p == MatchDateAmountMerchant {
		if c := strings.Compare(merchantKey(a.Merchant), merchantKey(b.Merchant)); c != 0 {
			return c
		}
	}
	if SameAmount(a.Amount, b.Amount) {
		return 0
	}
	return b.Amount.Cmp(a.Amount)
}

func compareDatesDesc(a, b Transaction) int {
	switch {
	case a.Date.After(b.Date):
		return -1
	case a.Date.Before(b.Date):
		return 1
	}
	return 0
}

func merchantKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
