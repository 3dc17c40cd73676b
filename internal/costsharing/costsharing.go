// Package costsharing applies the fixed cost-sharing pipeline to an allowed
// amount: deductible, copay, coinsurance, then the out-of-pocket clamp. The
// stage order is a compile-time property of Calculate, not a runtime rule list.
package costsharing

import (
	benefitplandomain "github.com/SalamEnterprise/claims-askes/internal/benefitplan/domain"
	"github.com/shopspring/decimal"
)

// Snapshot is the accumulator state the calculation runs against, passed by
// value so the calculator can never mutate shared accumulator records.
type Snapshot struct {
	DeductibleLimit int64
	DeductibleMet   int64
	OOPMax          int64
	OOPMet          int64
}

// Result is the outcome of one cost-sharing pass over a claim line.
type Result struct {
	AllowedAmount        int64
	DeductibleApplied    int64
	CopayApplied         int64
	Coinsurance          int64
	PaidAmount           int64
	MemberResponsibility int64
	OOPReduction         int64
}

// Calculate runs the pipeline over allowed minor units. All intermediate math
// is decimal; the single round-half-up to whole minor units happens at the
// end so per-stage rounding error cannot compound. IDR minor units are whole
// rupiah.
func Calculate(allowed int64, def benefitplandomain.BenefitDefinition, snap Snapshot) Result {
	if allowed <= 0 {
		return Result{}
	}

	amount := decimal.NewFromInt(allowed)

	// 1. Deductible.
	deductibleRoom := snap.DeductibleLimit - snap.DeductibleMet
	if deductibleRoom < 0 {
		deductibleRoom = 0
	}
	deductible := decimal.NewFromInt(minInt64(allowed, deductibleRoom))
	remaining := amount.Sub(deductible)

	// 2. Copay. A copay larger than the remainder cannot drive it negative;
	// the shortfall stays member responsibility.
	copay := decimal.NewFromInt(def.CopayAmount)
	if copay.GreaterThan(remaining) {
		copay = remaining
	}
	if copay.IsNegative() {
		copay = decimal.Zero
	}
	remaining = remaining.Sub(copay)

	// 3. Coinsurance.
	coinsurance := remaining.Mul(def.CoinsurancePct).Div(decimal.NewFromInt(100))
	paid := remaining.Sub(coinsurance)

	member := deductible.Add(copay).Add(coinsurance)

	// 4. Out-of-pocket clamp. Zero OOPMax means no cap is configured.
	var oopReduction decimal.Decimal
	if snap.OOPMax > 0 {
		oopRoom := decimal.NewFromInt(snap.OOPMax - snap.OOPMet)
		if oopRoom.IsNegative() {
			oopRoom = decimal.Zero
		}
		if member.GreaterThan(oopRoom) {
			oopReduction = member.Sub(oopRoom)
			member = oopRoom
			paid = paid.Add(oopReduction)
		}
	}

	// Single terminal rounding; member responsibility is derived from the
	// rounded paid amount so the line always conserves the allowed amount.
	paidRounded := roundHalfUp(paid)
	coinsuranceRounded := roundHalfUp(coinsurance.Sub(oopReduction))
	if coinsuranceRounded < 0 {
		coinsuranceRounded = 0
	}

	return Result{
		AllowedAmount:        allowed,
		DeductibleApplied:    roundHalfUp(deductible),
		CopayApplied:         roundHalfUp(copay),
		Coinsurance:          coinsuranceRounded,
		PaidAmount:           paidRounded,
		MemberResponsibility: allowed - paidRounded,
		OOPReduction:         roundHalfUp(oopReduction),
	}
}

func roundHalfUp(d decimal.Decimal) int64 {
	// decimal.Round rounds half away from zero; amounts here are never
	// negative, so this is round-half-up.
	return d.Round(0).IntPart()
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
