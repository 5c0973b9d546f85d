package model

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)
	return idWithSuffix
}

// ComputeBreakdown splits a total charge into the escrowed portion and the
// platform's cut. The fee is rounded to 2 decimal places (half away from
// zero),
// and the escrow amount absorbs the remainder so that
// amount == escrowAmount + platformFee always holds exactly.
func ComputeBreakdown(amount, feeRate decimal.Decimal) (escrowAmount, platformFee decimal.Decimal) {
	platformFee = amount.Mul(feeRate).Round(2)
	escrowAmount = amount.Sub(platformFee)
	return escrowAmount, platformFee
}
