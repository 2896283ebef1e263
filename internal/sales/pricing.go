package sales

import (
	"github.com/shopspring/decimal"

	"github.com/clinicdesk/clinicdesk/internal/inventory"
)

// capturedLine is the snapshot a sale already holds for a drug.
type capturedLine struct {
	name  string
	price decimal.Decimal
}

// priceItems turns requests into priced lines. The unit price is the explicit
// request price, else the price previously captured on the sale, else the entry's
// current selling price.
func priceItems(reqs []ItemRequest, entries map[string]inventory.Entry, captured map[string]capturedLine) []SaleItem {
	items := make([]SaleItem, 0, len(reqs))
	for _, req := range reqs {
		entry := entries[req.EntryID]
		name := entry.DisplayName
		price := entry.UnitSellingPrice
		if prev, ok := captured[req.EntryID]; ok {
			name = prev.name
			price = prev.price
		}
		if req.UnitPrice != nil {
			price = *req.UnitPrice
		}
		price = price.Round(2)
		items = append(items, SaleItem{
			DrugID:     req.EntryID,
			DrugName:   name,
			Quantity:   req.Quantity,
			UnitPrice:  price,
			TotalPrice: price.Mul(decimal.NewFromInt(int64(req.Quantity))),
		})
	}
	return items
}

// applyTotals recomputes subtotal and total from the sale's items, discount and tax.
// The total never drops below zero.
func applyTotals(sale *Sale) {
	subtotal := decimal.Zero
	for _, item := range sale.Items {
		subtotal = subtotal.Add(item.TotalPrice)
	}
	sale.Subtotal = subtotal
	total := subtotal.Sub(sale.Discount).Add(sale.Tax)
	if total.IsNegative() {
		total = decimal.Zero
	}
	sale.Total = total
}

func capturedLines(items []SaleItem) map[string]capturedLine {
	out := make(map[string]capturedLine, len(items))
	for _, item := range items {
		if _, ok := out[item.DrugID]; !ok {
			out[item.DrugID] = capturedLine{name: item.DrugName, price: item.UnitPrice}
		}
	}
	return out
}

// quantityDelta is the net ledger movement for one entry.
type quantityDelta struct {
	entryID string
	delta   int
}

// aggregate sums quantities per entry, keeping first-appearance order.
func aggregate(entryIDs []string, quantities []int) ([]string, map[string]int) {
	order := make([]string, 0, len(entryIDs))
	totals := make(map[string]int, len(entryIDs))
	for i, id := range entryIDs {
		if _, seen := totals[id]; !seen {
			order = append(order, id)
		}
		totals[id] += quantities[i]
	}
	return order, totals
}

func aggregateRequests(reqs []ItemRequest) ([]string, map[string]int) {
	ids := make([]string, len(reqs))
	qty := make([]int, len(reqs))
	for i, r := range reqs {
		ids[i], qty[i] = r.EntryID, r.Quantity
	}
	return aggregate(ids, qty)
}

func aggregateItems(items []SaleItem) ([]string, map[string]int) {
	ids := make([]string, len(items))
	qty := make([]int, len(items))
	for i, it := range items {
		ids[i], qty[i] = it.DrugID, it.Quantity
	}
	return aggregate(ids, qty)
}

// editDeltas returns new-minus-old per entry. Entries in the new items come first
// in supplied order, then entries only present before. Zero deltas are dropped.
func editDeltas(oldItems []SaleItem, newReqs []ItemRequest) []quantityDelta {
	newOrder, newQty := aggregateRequests(newReqs)
	oldOrder, oldQty := aggregateItems(oldItems)
	deltas := make([]quantityDelta, 0, len(newOrder)+len(oldOrder))
	for _, id := range newOrder {
		if d := newQty[id] - oldQty[id]; d != 0 {
			deltas = append(deltas, quantityDelta{entryID: id, delta: d})
		}
	}
	for _, id := range oldOrder {
		if _, kept := newQty[id]; kept {
			continue
		}
		deltas = append(deltas, quantityDelta{entryID: id, delta: -oldQty[id]})
	}
	return deltas
}
