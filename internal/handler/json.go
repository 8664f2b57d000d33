package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/gmarket/internal/domain/cart"
	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/fulfillment"
	"github.com/xenking/gmarket/internal/domain/order"
	"github.com/xenking/gmarket/internal/domain/payment"
	"github.com/xenking/gmarket/internal/domain/product"
	"github.com/xenking/gmarket/internal/domain/shipping"
)

const maxBodyBytes = 1 << 20

// readBody decodes the request body with fn. An empty body is decoded as an
// empty object.
func readBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fault.Validationf("read body: %s", err)
	}
	if len(body) == 0 {
		return nil
	}
	d := jx.DecodeBytes(body)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	}); err != nil {
		if errors.Is(err, fault.ErrValidation) {
			return err
		}
		return fault.Validationf("malformed JSON body: %s", err)
	}
	return nil
}

// decodeQuantity reads an integer quantity within ±cart.MaxQuantity.
func decodeQuantity(d *jx.Decoder) (int, error) {
	n, err := d.Int64()
	if err != nil || n > cart.MaxQuantity || n < -cart.MaxQuantity {
		return 0, fault.Validationf("quantity must be an integer not exceeding %d", cart.MaxQuantity)
	}
	return int(n), nil
}

// decodeDecimal accepts a JSON number or a numeric string holding a money
// amount.
func decodeDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	default:
		return decimal.Decimal{}, fault.Validationf("%s must be a number", field)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fault.Validationf("%s must be a number", field)
	}
	if !order.ValidAmount(v) {
		return decimal.Decimal{}, fault.Validationf("%s must have at most %d decimal places", field, order.MoneyPlaces)
	}
	return v, nil
}

// decodeTime accepts an RFC 3339 timestamp or a YYYY-MM-DD date.
func decodeTime(d *jx.Decoder, field string) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, fault.Validationf("%s must be a string", field)
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fault.Validationf("%s must be an RFC 3339 timestamp or a date", field)
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(e.Bytes())))
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func money(e *jx.Encoder, v decimal.Decimal) {
	e.Str(v.StringFixed(2))
}

func timestamp(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("price", func(e *jx.Encoder) { money(e, p.Price) })
		e.Field("stock_quantity", func(e *jx.Encoder) { e.Int(p.StockQuantity) })
		e.Field("is_active", func(e *jx.Encoder) { e.Bool(p.IsActive) })
	})
}

func encodeCartSummary(e *jx.Encoder, s *cart.Summary) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(s.Cart.ID) })
		e.Field("customer_id", func(e *jx.Encoder) { e.Str(s.Cart.CustomerID) })
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for _, l := range s.Lines {
				e.Obj(func(e *jx.Encoder) {
					e.Field("product_id", func(e *jx.Encoder) { e.Str(l.ProductID) })
					e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
					e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
					e.Field("unit_price", func(e *jx.Encoder) { money(e, l.UnitPrice) })
					e.Field("subtotal", func(e *jx.Encoder) { money(e, l.Subtotal) })
				})
			}
			e.ArrEnd()
		})
		e.Field("total_items", func(e *jx.Encoder) { e.Int(s.TotalItems) })
		e.Field("total_amount", func(e *jx.Encoder) { money(e, s.TotalAmount) })
		e.Field("updated_at", func(e *jx.Encoder) { timestamp(e, s.Cart.UpdatedAt) })
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("order_number", func(e *jx.Encoder) { e.Str(o.Number) })
		e.Field("customer_id", func(e *jx.Encoder) { e.Str(o.CustomerID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for _, it := range o.Items {
				e.Obj(func(e *jx.Encoder) {
					e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
					e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
					e.Field("unit_price", func(e *jx.Encoder) { money(e, it.UnitPrice) })
					e.Field("subtotal", func(e *jx.Encoder) { money(e, it.Subtotal) })
				})
			}
			e.ArrEnd()
		})
		e.Field("subtotal", func(e *jx.Encoder) { money(e, o.Subtotal) })
		e.Field("discount_amount", func(e *jx.Encoder) { money(e, o.Discount) })
		e.Field("total_amount", func(e *jx.Encoder) { money(e, o.Total) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(o.Currency) })
		e.Field("notes", func(e *jx.Encoder) { e.Str(o.Notes) })
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, o.CreatedAt) })
		e.Field("updated_at", func(e *jx.Encoder) { timestamp(e, o.UpdatedAt) })
	})
}

func encodePayment(e *jx.Encoder, p *payment.Payment) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(p.OrderID) })
		e.Field("amount", func(e *jx.Encoder) { money(e, p.Amount) })
		e.Field("fees", func(e *jx.Encoder) { money(e, p.Fee) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(p.Currency) })
		e.Field("method", func(e *jx.Encoder) { e.Str(string(p.Method)) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(p.Status)) })
		e.Field("transaction_reference", func(e *jx.Encoder) { e.Str(p.TransactionReference) })
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, p.CreatedAt) })
		e.Field("updated_at", func(e *jx.Encoder) { timestamp(e, p.UpdatedAt) })
	})
}

func encodeShipment(e *jx.Encoder, sh *shipping.Shipment) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(sh.ID) })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(sh.OrderID) })
		e.Field("courier_id", func(e *jx.Encoder) { e.Str(sh.CourierID) })
		e.Field("address", func(e *jx.Encoder) { e.Str(sh.Address) })
		e.Field("city", func(e *jx.Encoder) { e.Str(sh.City) })
		e.Field("region", func(e *jx.Encoder) { e.Str(sh.Region) })
		e.Field("postal_code", func(e *jx.Encoder) { e.Str(sh.PostalCode) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(sh.Status)) })
		e.Field("shipping_date", func(e *jx.Encoder) { timestamp(e, sh.ShippingDate) })
		e.Field("delivery_date", func(e *jx.Encoder) {
			if sh.DeliveryDate == nil {
				e.Null()
				return
			}
			timestamp(e, *sh.DeliveryDate)
		})
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, sh.CreatedAt) })
		e.Field("updated_at", func(e *jx.Encoder) { timestamp(e, sh.UpdatedAt) })
	})
}

func encodeCourier(e *jx.Encoder, c *shipping.Courier) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(c.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(c.Name) })
		e.Field("phone", func(e *jx.Encoder) { e.Str(c.Phone) })
		e.Field("email", func(e *jx.Encoder) { e.Str(c.Email) })
		e.Field("region", func(e *jx.Encoder) { e.Str(c.Region) })
		e.Field("is_active", func(e *jx.Encoder) { e.Bool(c.IsActive) })
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, c.CreatedAt) })
	})
}

func encodeReport(e *jx.Encoder, r *fulfillment.Report) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("order", func(e *jx.Encoder) { encodeOrder(e, r.Order) })
		e.Field("payment", func(e *jx.Encoder) {
			if r.Payment == nil {
				e.Null()
				return
			}
			encodePayment(e, r.Payment)
		})
		e.Field("shipment", func(e *jx.Encoder) {
			if r.Shipment == nil {
				e.Null()
				return
			}
			encodeShipment(e, r.Shipment)
		})
		e.Field("consistent", func(e *jx.Encoder) { e.Bool(r.Consistent()) })
		e.Field("issues", func(e *jx.Encoder) {
			e.ArrStart()
			for _, is := range r.Issues {
				e.Obj(func(e *jx.Encoder) {
					e.Field("code", func(e *jx.Encoder) { e.Str(string(is.Code)) })
					e.Field("message", func(e *jx.Encoder) { e.Str(is.Message) })
				})
			}
			e.ArrEnd()
		})
	})
}
