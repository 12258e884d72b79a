package model

import (
	"fmt"
	"strings"
	"time"
)

// Product は表示レイヤーが参照する商品レコード。
// ライフサイクルのロジックは持たず、保存形式と制約のみを定義する。
type Product struct {
	ID          string
	Name        string
	Description string
	Price       float64
	Images      []string // 表示順のURL
	Category    string
	InStock     bool
	Quantity    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewProduct はデフォルト値（在庫あり、数量0）を適用したProductを生成する。
func NewProduct(name, category string, price float64) *Product {
	return &Product{
		Name:     strings.TrimSpace(name),
		Category: category,
		Price:    price,
		Images:   []string{},
		InStock:  true,
		Quantity: 0,
	}
}

// Validate は商品レコードの制約を検証する。
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", ErrValidation)
	}
	if p.Category == "" {
		return fmt.Errorf("%w: product category is required", ErrValidation)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: product price must be >= 0, got %v", ErrValidation, p.Price)
	}
	if p.Quantity < 0 {
		return fmt.Errorf("%w: product quantity must be >= 0, got %d", ErrValidation, p.Quantity)
	}
	return nil
}
