// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package wallet

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/chatpay/chatpay-go/types"
)

var currencyDecimals = map[types.Currency]int32{
	types.CurrencySUI:  9,
	types.CurrencyUSDC: 6,
	types.CurrencyNGN:  2,
	types.CurrencyUSD:  2,
	types.CurrencyEUR:  2,
}

// Decimals returns the number of decimals of the smallest unit of a currency. Unknown
// currencies have 2.
func Decimals(currency types.Currency) int32 {
	if dec, ok := currencyDecimals[currency]; ok {
		return dec
	}
	return 2
}

// ToBaseUnits converts an amount to the smallest unit of the currency, rounding down.
func ToBaseUnits(amount decimal.Decimal, currency types.Currency) decimal.Decimal {
	return amount.Shift(Decimals(currency)).Floor()
}

// FromBaseUnits converts an amount in the smallest unit back to the display unit.
func FromBaseUnits(base decimal.Decimal, currency types.Currency) decimal.Decimal {
	return base.Shift(-Decimals(currency))
}

// Bounds are the accepted range of a payment amount. A zero Max means there is no upper bound.
type Bounds struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// AmountBounds are the per-currency payment limits. Amounts below Min are rejected, amounts
// above Max only produce a warning.
var AmountBounds = map[types.Currency]Bounds{
	types.CurrencySUI:  {Min: decimal.RequireFromString("0.001"), Max: decimal.NewFromInt(10_000)},
	types.CurrencyUSDC: {Min: decimal.RequireFromString("0.01"), Max: decimal.NewFromInt(100_000)},
	types.CurrencyNGN:  {Min: decimal.NewFromInt(100), Max: decimal.NewFromInt(5_000_000)},
	types.CurrencyUSD:  {Min: decimal.NewFromInt(1), Max: decimal.NewFromInt(10_000)},
	types.CurrencyEUR:  {Min: decimal.NewFromInt(1), Max: decimal.NewFromInt(10_000)},
}

var defaultBounds = Bounds{Min: decimal.RequireFromString("0.01")}

// ValidateAmount checks an amount against the bounds of its currency. A non-empty warning is
// returned for amounts above the maximum; those are still valid.
func ValidateAmount(amount decimal.Decimal, currency types.Currency) (warning string, err error) {
	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	bounds, ok := AmountBounds[currency]
	if !ok {
		bounds = defaultBounds
	}
	if amount.LessThan(bounds.Min) {
		return "", fmt.Errorf("%w: minimum amount is %s %s", ErrInvalidAmount, bounds.Min, currency)
	}
	if ToBaseUnits(amount, currency).IsZero() {
		return "", fmt.Errorf("%w: amount is smaller than one unit of %s", ErrInvalidAmount, currency)
	}
	if !bounds.Max.IsZero() && amount.GreaterThan(bounds.Max) {
		warning = fmt.Sprintf("%s %s is above the usual maximum of %s %s", amount, currency, bounds.Max, currency)
	}
	return warning, nil
}
