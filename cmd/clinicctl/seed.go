package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/clinicdesk/clinicdesk/internal/inventory"
)

type catalogSeed struct {
	name     string
	generic  string
	quantity int
	price    string
	reorder  int
}

var sampleCatalog = []catalogSeed{
	{name: "Paracetamol 500mg", generic: "acetaminophen", quantity: 500, price: "0.25", reorder: 100},
	{name: "Amoxicillin 250mg", generic: "amoxicillin", quantity: 200, price: "0.80", reorder: 50},
	{name: "Ibuprofen 400mg", generic: "ibuprofen", quantity: 300, price: "0.35", reorder: 60},
	{name: "Metformin 500mg", generic: "metformin", quantity: 240, price: "0.40", reorder: 60},
	{name: "Omeprazole 20mg", generic: "omeprazole", quantity: 150, price: "0.55", reorder: 40},
	{name: "Cetirizine 10mg", generic: "cetirizine", quantity: 180, price: "0.30", reorder: 40},
	{name: "Salbutamol Inhaler", generic: "salbutamol", quantity: 25, price: "6.50", reorder: 10},
	{name: "ORS Sachet", generic: "oral rehydration salts", quantity: 8, price: "0.60", reorder: 20},
}

// seedCatalog creates every seed whose display name is not already present.
func seedCatalog(ctx context.Context, svc *inventory.Service, seeds []catalogSeed) (int, error) {
	created := 0
	for _, seed := range seeds {
		existing, _, err := svc.List(ctx, inventory.ListFilter{Search: seed.name})
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", seed.name, err)
		}
		if containsName(existing, seed.name) {
			continue
		}
		price, err := decimal.NewFromString(seed.price)
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", seed.name, err)
		}
		reorder := seed.reorder
		if _, err := svc.CreateEntry(ctx, inventory.CreateEntryInput{
			DisplayName:     seed.name,
			GenericName:     seed.generic,
			InitialQuantity: seed.quantity,
			UnitPrice:       price,
			ReorderLevel:    &reorder,
		}); err != nil {
			return created, fmt.Errorf("seed %s: %w", seed.name, err)
		}
		created++
	}
	return created, nil
}

func containsName(entries []inventory.Entry, name string) bool {
	for _, e := range entries {
		if strings.EqualFold(e.DisplayName, name) {
			return true
		}
	}
	return false
}
