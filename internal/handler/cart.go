package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/gmarket/internal/domain/fault"
)

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Carts.Totals(r.Context(), caller(r.Context()).CustomerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCartSummary(e, sum) })
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.writeCart(w, r)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var (
		productID string
		qty       int
	)
	err := readBody(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "product_id":
			productID, err = d.Str()
		case "quantity":
			qty, err = decodeQuantity(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if productID == "" {
		writeError(w, r, fault.Validationf("product_id is required"))
		return
	}

	if _, err := h.svc.Carts.AddItem(r.Context(), caller(r.Context()).CustomerID, productID, qty); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, r)
}

func (h *Handler) setCartItem(w http.ResponseWriter, r *http.Request) {
	qty, set := 0, false
	err := readBody(w, r, func(d *jx.Decoder, key string) (err error) {
		if key != "quantity" {
			return d.Skip()
		}
		set = true
		qty, err = decodeQuantity(d)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !set {
		writeError(w, r, fault.Validationf("quantity is required"))
		return
	}

	if _, err := h.svc.Carts.SetQuantity(r.Context(), caller(r.Context()).CustomerID, r.PathValue("productID"), qty); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, r)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Carts.SetQuantity(r.Context(), caller(r.Context()).CustomerID, r.PathValue("productID"), 0); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, r)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Carts.Clear(r.Context(), caller(r.Context()).CustomerID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
