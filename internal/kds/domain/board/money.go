package board

import (
	"kitchen-display/internal/kds/domain/models"

	"github.com/shopspring/decimal"
)

// AmountDue is what is left to collect, or the full total once nothing is
// outstanding.
func AmountDue(total, paid decimal.Decimal) decimal.Decimal {
	if outstanding := total.Sub(paid); outstanding.IsPositive() {
		return outstanding
	}
	return total
}

// orderTotal is the stored total, or the menu-priced sum of live items when
// the order carries none.
func orderTotal(o models.Order, live []models.OrderItem, menu map[string]models.MenuItem) decimal.Decimal {
	if !o.TotalAmount.IsZero() {
		return o.TotalAmount
	}

	sum := decimal.Zero
	for _, it := range live {
		price := it.Price
		if m, ok := menu[it.MenuItemID]; ok {
			price = m.Price
		}
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}
		sum = sum.Add(price.Mul(decimal.NewFromInt(int64(qty))))
	}
	return sum
}
