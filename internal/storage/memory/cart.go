package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/xenking/gmarket/internal/domain/cart"
	"github.com/xenking/gmarket/internal/domain/fault"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository stores carts.
type CartRepository struct {
	s *Store
}

// Carts returns the store's cart repository.
func (s *Store) Carts() *CartRepository {
	return &CartRepository{s: s}
}

// GetOrCreate returns the customer's cart, creating it on first access.
func (r *CartRepository) GetOrCreate(ctx context.Context, customerID string) (*cart.Cart, error) {
	defer r.s.lock(ctx)()
	c, ok := r.s.st.carts[customerID]
	if !ok {
		now := r.s.now().UTC()
		c = cart.Cart{
			ID:         uuid.New().String(),
			CustomerID: customerID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		r.s.st.carts[customerID] = c
		r.s.st.cartOwner[c.ID] = customerID
	}
	c = cloneCart(c)
	return &c, nil
}

// GetOrCreateForUpdate is GetOrCreate; the store mutex already serializes
// transactions.
func (r *CartRepository) GetOrCreateForUpdate(ctx context.Context, customerID string) (*cart.Cart, error) {
	return r.GetOrCreate(ctx, customerID)
}

// AddQuantity merges qty into the cart line for productID.
func (r *CartRepository) AddQuantity(ctx context.Context, cartID, productID string, qty int) (int, error) {
	defer r.s.lock(ctx)()
	c, err := r.cart(cartID)
	if err != nil {
		return 0, err
	}
	total := qty
	found := false
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity += qty
			total = c.Lines[i].Quantity
			found = true
			break
		}
	}
	if !found {
		c.Lines = append(c.Lines, cart.Line{ProductID: productID, Quantity: qty})
	}
	r.save(c)
	return total, nil
}

// SetQuantity replaces the quantity of an existing line.
func (r *CartRepository) SetQuantity(ctx context.Context, cartID, productID string, qty int) error {
	defer r.s.lock(ctx)()
	c, err := r.cart(cartID)
	if err != nil {
		return err
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity = qty
			r.save(c)
			return nil
		}
	}
	return fault.NotFoundf("product %s in cart %s", productID, cartID)
}

// RemoveLine deletes the line for productID.
func (r *CartRepository) RemoveLine(ctx context.Context, cartID, productID string) error {
	defer r.s.lock(ctx)()
	c, err := r.cart(cartID)
	if err != nil {
		return err
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i:i], c.Lines[i+1:]...)
			r.save(c)
			return nil
		}
	}
	return fault.NotFoundf("product %s in cart %s", productID, cartID)
}

// Clear removes every line from the cart.
func (r *CartRepository) Clear(ctx context.Context, cartID string) error {
	defer r.s.lock(ctx)()
	c, err := r.cart(cartID)
	if err != nil {
		return err
	}
	c.Lines = nil
	r.save(c)
	return nil
}

func (r *CartRepository) cart(cartID string) (cart.Cart, error) {
	owner, ok := r.s.st.cartOwner[cartID]
	if !ok {
		return cart.Cart{}, fault.NotFoundf("cart %s", cartID)
	}
	return cloneCart(r.s.st.carts[owner]), nil
}

func (r *CartRepository) save(c cart.Cart) {
	c.UpdatedAt = r.s.now().UTC()
	r.s.st.carts[c.CustomerID] = c
}
