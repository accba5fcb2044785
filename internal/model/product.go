package model

import (
	"github.com/shopspring/decimal"
)

// DefaultContent is stored when a product is written without content.
const DefaultContent = "no content"

// Product represents a product entity with its properties.
type Product struct {
	ID        int64
	Title     string
	Content   string
	Price     decimal.Decimal
	SalePrice decimal.NullDecimal
}

// ApplyDefaults fills optional fields that must never be persisted empty.
func (p *Product) ApplyDefaults() {
	if p.Content == "" {
		p.Content = DefaultContent
	}
}
