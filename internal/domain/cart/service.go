package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/product"
)

// StockChecker performs the advisory availability check. It is satisfied by
// *inventory.Ledger.
type StockChecker interface {
	CheckAvailable(ctx context.Context, productID string, qty int) error
}

// Service aggregates a customer's cart. Stock checks made here are soft:
// cart holdings are not reservations and order placement re-validates.
type Service struct {
	carts    Repository
	products product.Repository
	stock    StockChecker
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository, stock StockChecker) *Service {
	return &Service{
		carts:    carts,
		products: products,
		stock:    stock,
	}
}

// Get returns the customer's cart, creating an empty one on first access.
func (s *Service) Get(ctx context.Context, customerID string) (*Cart, error) {
	if customerID == "" {
		return nil, fault.Validationf("customer id is required")
	}
	c, err := s.carts.GetOrCreate(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

// AddItem adds qty units of productID to the customer's cart, merging with an
// existing line. The cumulative quantity must not exceed current stock.
func (s *Service) AddItem(ctx context.Context, customerID, productID string, qty int) (*Cart, error) {
	if qty <= 0 {
		return nil, fault.Validationf("quantity must be greater than 0")
	}
	if qty > MaxQuantity {
		return nil, fault.Validationf("quantity must not exceed %d", MaxQuantity)
	}
	p, err := s.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	c, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	existing, _ := c.Line(p.ID)
	if existing.Quantity > MaxQuantity-qty {
		return nil, fault.Validationf("quantity of %s in cart must not exceed %d", p.ID, MaxQuantity)
	}
	if err := s.stock.CheckAvailable(ctx, p.ID, existing.Quantity+qty); err != nil {
		return nil, err
	}

	if _, err := s.carts.AddQuantity(ctx, c.ID, p.ID, qty); err != nil {
		return nil, errors.Wrap(err, "add cart line")
	}
	return s.Get(ctx, customerID)
}

// SetQuantity replaces the quantity of an existing line. A quantity of zero or
// less removes the line.
func (s *Service) SetQuantity(ctx context.Context, customerID, productID string, qty int) (*Cart, error) {
	c, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if _, ok := c.Line(productID); !ok {
		return nil, fault.NotFoundf("product %s in cart", productID)
	}

	if qty > MaxQuantity {
		return nil, fault.Validationf("quantity must not exceed %d", MaxQuantity)
	}
	if qty <= 0 {
		if err := s.carts.RemoveLine(ctx, c.ID, productID); err != nil {
			return nil, errors.Wrap(err, "remove cart line")
		}
		return s.Get(ctx, customerID)
	}

	p, err := s.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := s.stock.CheckAvailable(ctx, p.ID, qty); err != nil {
		return nil, err
	}
	if err := s.carts.SetQuantity(ctx, c.ID, p.ID, qty); err != nil {
		return nil, errors.Wrap(err, "set cart line")
	}
	return s.Get(ctx, customerID)
}

// Totals values the cart at current catalog prices. Lines whose product no
// longer exists are left out of the totals.
func (s *Service) Totals(ctx context.Context, customerID string) (*Summary, error) {
	c, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Cart: c, TotalAmount: decimal.Zero}
	if len(c.Lines) == 0 {
		return sum, nil
	}

	ids := make([]string, len(c.Lines))
	for i, l := range c.Lines {
		ids[i] = l.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get cart products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	for _, l := range c.Lines {
		p, ok := byID[l.ProductID]
		if !ok {
			continue
		}
		subtotal := p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		sum.Lines = append(sum.Lines, PricedLine{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  l.Quantity,
			UnitPrice: p.Price,
			Subtotal:  subtotal,
		})
		sum.TotalItems += l.Quantity
		sum.TotalAmount = sum.TotalAmount.Add(subtotal)
	}
	return sum, nil
}

// Clear removes every line from the customer's cart.
func (s *Service) Clear(ctx context.Context, customerID string) error {
	c, err := s.Get(ctx, customerID)
	if err != nil {
		return err
	}
	if err := s.carts.Clear(ctx, c.ID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

func (s *Service) activeProduct(ctx context.Context, productID string) (*product.Product, error) {
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	if !p.IsActive {
		return nil, fault.Validationf("product %s is not available", productID)
	}
	return p, nil
}
