package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func nd(s string) decimal.NullDecimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func TestAvailable(t *testing.T) {
	tests := []struct {
		name   string
		price  decimal.NullDecimal
		status StockStatus
		want   bool
	}{
		{name: "priced and in stock", price: nd("100"), status: StockInStock, want: true},
		{name: "out of stock", price: nd("100"), status: StockOutOfStock, want: false},
		{name: "no price", price: decimal.NullDecimal{}, status: StockInStock, want: false},
		{name: "zero price", price: nd("0"), status: StockInStock, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Available(tt.price, tt.status); got != tt.want {
				t.Fatalf("Available = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestObservationChanged(t *testing.T) {
	base := &PriceObservation{Price: nd("100"), StockStatus: StockInStock, RecordedAt: time.Now()}

	tests := []struct {
		name   string
		obs    *PriceObservation
		price  decimal.NullDecimal
		status StockStatus
		want   bool
	}{
		{name: "nil observation always changed", obs: nil, price: nd("100"), status: StockInStock, want: true},
		{name: "identical reading", obs: base, price: nd("100"), status: StockInStock, want: false},
		{name: "equal value different scale", obs: base, price: nd("100.00"), status: StockInStock, want: false},
		{name: "price moved", obs: base, price: nd("90"), status: StockInStock, want: true},
		{name: "stock flipped", obs: base, price: nd("100"), status: StockOutOfStock, want: true},
		{name: "price disappeared", obs: base, price: decimal.NullDecimal{}, status: StockInStock, want: true},
		{
			name:   "both unpriced and out of stock",
			obs:    &PriceObservation{StockStatus: StockOutOfStock},
			price:  decimal.NullDecimal{},
			status: StockOutOfStock,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.obs.Changed(tt.price, tt.status); got != tt.want {
				t.Fatalf("Changed = %v, want %v", got, tt.want)
			}
		})
	}
}
