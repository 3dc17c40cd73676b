// Package cob implements coordination-of-benefits / third-party-liability
// adjustments: when another payer already covered part of a charge, this
// plan's payable amount shrinks by the lesser of the two, and accumulator
// usage records only the net exposure.
package cob

// Apply reduces payable by the other payer's contribution. The adjusted
// amount is never negative; discarded is the portion of otherPayerPaid that
// actually offset this plan's payment.
func Apply(otherPayerPaid, payable int64) (adjusted int64, discarded int64) {
	if otherPayerPaid <= 0 || payable <= 0 {
		if payable < 0 {
			payable = 0
		}
		return payable, 0
	}
	if otherPayerPaid >= payable {
		return 0, payable
	}
	return payable - otherPayerPaid, otherPayerPaid
}

// Allocator spreads one claim-level other-payer amount across claim lines in
// order, consuming the pool as it goes.
type Allocator struct {
	remaining int64
}

func NewAllocator(otherPayerPaid int64) *Allocator {
	if otherPayerPaid < 0 {
		otherPayerPaid = 0
	}
	return &Allocator{remaining: otherPayerPaid}
}

// Apply adjusts one line's payable amount against the remaining pool.
func (a *Allocator) Apply(payable int64) (adjusted int64, discarded int64) {
	adjusted, discarded = Apply(a.remaining, payable)
	a.remaining -= discarded
	return adjusted, discarded
}

// Remaining reports the unconsumed other-payer amount.
func (a *Allocator) Remaining() int64 {
	return a.remaining
}
