// Package ledger owns the wire encoding of the payment_method and
// debtor_name order fields. Internally allocations are tagged lists; the
// comma/colon string form exists only at this boundary.
//
// Two forms are accepted when decoding:
//
//	new:    "cash:700,mpesa:300"       / "Jane:200,John:150"
//	legacy: "cash" | "mobile" | "card" — all of amount_paid via one method
//	        "Jane"                     — all of the balance owed by one person
//
// Encoding always emits the new colon form. Malformed segments are skipped so
// a corrupt trailing fragment never poisons the rest of the field.
package ledger

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jikoni-pos/api/internal/enum"
)

// Allocation is one method's share of a collected payment.
type Allocation struct {
	Method string
	Amount decimal.Decimal
}

// DebtorAllocation is one named person's share of an outstanding balance.
type DebtorAllocation struct {
	Name   string
	Amount decimal.Decimal
}

// legacyMethods maps bare storage tokens to display method names.
var legacyMethods = map[string]string{
	enum.PaymentMethodCash:   enum.MethodDisplayCash,
	enum.PaymentMethodMobile: enum.MethodDisplayMpesa,
	enum.PaymentMethodCard:   enum.MethodDisplayKCB,
}

// KnownMethod reports whether m is a recognized display method name.
func KnownMethod(m string) bool {
	switch m {
	case enum.MethodDisplayCash, enum.MethodDisplayMpesa, enum.MethodDisplayKCB:
		return true
	}
	return false
}

// EncodeMethods renders allocations in the colon form. Zero-amount entries
// are dropped; an empty result means the field should be stored as NULL.
func EncodeMethods(allocs []Allocation) string {
	parts := make([]string, 0, len(allocs))
	for _, a := range allocs {
		if a.Method == "" || !a.Amount.IsPositive() {
			continue
		}
		parts = append(parts, a.Method+":"+a.Amount.String())
	}
	return strings.Join(parts, ",")
}

// DecodeMethods parses an encoded payment_method field. amountPaid anchors
// the legacy bare-token form, which assigns the full paid amount to a single
// method.
func DecodeMethods(s string, amountPaid decimal.Decimal) []Allocation {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	// Legacy single-token form: no colon anywhere in the field.
	if !strings.Contains(s, ":") && !strings.Contains(s, ",") {
		display, ok := legacyMethods[strings.ToLower(s)]
		if !ok {
			return nil
		}
		return []Allocation{{Method: display, Amount: amountPaid}}
	}

	var allocs []Allocation
	for _, seg := range strings.Split(s, ",") {
		seg = strings.TrimSpace(seg)
		method, amount, ok := splitSegment(seg)
		if !ok {
			continue
		}
		allocs = append(allocs, Allocation{Method: method, Amount: amount})
	}
	return allocs
}

// EncodeDebtors renders debtor allocations in the colon form.
func EncodeDebtors(debtors []DebtorAllocation) string {
	parts := make([]string, 0, len(debtors))
	for _, d := range debtors {
		if d.Name == "" || !d.Amount.IsPositive() {
			continue
		}
		parts = append(parts, d.Name+":"+d.Amount.String())
	}
	return strings.Join(parts, ",")
}

// DecodeDebtors parses an encoded debtor_name field. balance anchors the
// legacy bare-name form, which assigns the whole residual balance to one
// person.
func DecodeDebtors(s string, balance decimal.Decimal) []DebtorAllocation {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if !strings.Contains(s, ":") && !strings.Contains(s, ",") {
		return []DebtorAllocation{{Name: s, Amount: balance}}
	}

	var debtors []DebtorAllocation
	for _, seg := range strings.Split(s, ",") {
		seg = strings.TrimSpace(seg)
		name, amount, ok := splitSegment(seg)
		if !ok {
			continue
		}
		debtors = append(debtors, DebtorAllocation{Name: name, Amount: amount})
	}
	return debtors
}

// MergeMethods folds extra allocations into base, summing amounts per method
// and preserving first-seen order. Settlement history on an order accumulates
// instead of being overwritten.
func MergeMethods(base, extra []Allocation) []Allocation {
	merged := make([]Allocation, 0, len(base)+len(extra))
	index := make(map[string]int, len(base)+len(extra))
	for _, a := range append(append([]Allocation{}, base...), extra...) {
		if !a.Amount.IsPositive() {
			continue
		}
		if i, ok := index[a.Method]; ok {
			merged[i].Amount = merged[i].Amount.Add(a.Amount)
			continue
		}
		index[a.Method] = len(merged)
		merged = append(merged, a)
	}
	return merged
}

// MergeDebtors folds extra debtor allocations into base, summing per name.
func MergeDebtors(base, extra []DebtorAllocation) []DebtorAllocation {
	merged := make([]DebtorAllocation, 0, len(base)+len(extra))
	index := make(map[string]int, len(base)+len(extra))
	for _, d := range append(append([]DebtorAllocation{}, base...), extra...) {
		if !d.Amount.IsPositive() {
			continue
		}
		if i, ok := index[d.Name]; ok {
			merged[i].Amount = merged[i].Amount.Add(d.Amount)
			continue
		}
		index[d.Name] = len(merged)
		merged = append(merged, d)
	}
	return merged
}

// Sum returns the total of a method allocation list.
func Sum(allocs []Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allocs {
		total = total.Add(a.Amount)
	}
	return total
}

// SumDebtors returns the total owed across a debtor allocation list.
func SumDebtors(debtors []DebtorAllocation) decimal.Decimal {
	total := decimal.Zero
	for _, d := range debtors {
		total = total.Add(d.Amount)
	}
	return total
}

// splitSegment parses one "key:amount" segment. The split is on the last
// colon so names containing colons still parse. Returns ok=false for
// segments that should be skipped.
func splitSegment(seg string) (string, decimal.Decimal, bool) {
	i := strings.LastIndex(seg, ":")
	if i <= 0 || i == len(seg)-1 {
		return "", decimal.Zero, false
	}
	key := strings.TrimSpace(seg[:i])
	amount, err := decimal.NewFromString(strings.TrimSpace(seg[i+1:]))
	if err != nil || key == "" {
		return "", decimal.Zero, false
	}
	return key, amount, true
}
