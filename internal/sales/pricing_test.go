package sales

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEditDeltasOrdering(t *testing.T) {
	old := []SaleItem{{DrugID: "A", Quantity: 4}, {DrugID: "B", Quantity: 2}, {DrugID: "D", Quantity: 1}}
	deltas := editDeltas(old, []ItemRequest{item("C", 1), item("A", 3), item("D", 1), item("A", 3)})

	require.Equal(t, []quantityDelta{
		{entryID: "C", delta: 1},
		{entryID: "A", delta: 2},
		{entryID: "B", delta: -2},
	}, deltas)
}

func TestApplyTotalsClampsAtZero(t *testing.T) {
	sale := Sale{
		Items:    []SaleItem{{TotalPrice: dec("3.00")}, {TotalPrice: dec("1.50")}},
		Discount: dec("10"),
		Tax:      dec("0.25"),
	}
	applyTotals(&sale)
	require.True(t, dec("4.50").Equal(sale.Subtotal))
	require.True(t, sale.Total.IsZero())
}
