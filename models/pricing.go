package models

import "github.com/shopspring/decimal"

// PriceTolerance is the largest difference accepted between a client's
// totals and the server's.
var PriceTolerance = decimal.New(1, -2)

var hundred = decimal.NewFromInt(100)

type Totals struct {
	Items    decimal.Decimal
	Discount decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals applies a percentage discount to the items subtotal and
// adds shipping: total = items - items*percent/100 + shipping.
func ComputeTotals(items, shipping decimal.Decimal, discountPercent int) Totals {
	discount := decimal.Zero
	if discountPercent > 0 {
		discount = items.Mul(decimal.NewFromInt(int64(discountPercent))).Div(hundred).Round(2)
	}
	return Totals{
		Items:    items.Round(2),
		Discount: discount,
		Shipping: shipping.Round(2),
		Total:    items.Sub(discount).Add(shipping).Round(2),
	}
}

// LineTotal is price × quantity.
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}
