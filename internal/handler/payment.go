package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/gmarket/internal/domain/payment"
	"github.com/xenking/gmarket/internal/events"
)

func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	req := payment.InitiateRequest{OrderID: r.PathValue("id")}
	err := readBody(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "method", "payment_method":
			req.Method, err = d.Str()
		case "fees", "fee":
			req.Fee, err = decodeDecimal(d, key)
		case "transaction_reference":
			req.TransactionReference, err = d.Str()
		case "currency":
			req.Currency, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.ownedOrder(r.Context(), req.OrderID); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.svc.Payments.Initiate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.publish(r.Context(), events.NewPaymentInitiated(p))
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodePayment(e, p) })
}

func (h *Handler) getOrderPayment(w http.ResponseWriter, r *http.Request) {
	o, err := h.ownedOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.svc.Payments.GetByOrder(r.Context(), o.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePayment(e, p) })
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Payments.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePayment(e, p) })
}

func (h *Handler) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var (
		status    string
		reference *string
	)
	err := readBody(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := d.Str()
			status = s
			return err
		case "transaction_reference":
			ref, err := d.Str()
			reference = &ref
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.svc.Payments.UpdateStatus(r.Context(), r.PathValue("id"), status, reference)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.publish(r.Context(), events.NewPaymentStatusChanged(p))
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePayment(e, p) })
}

func (h *Handler) cancelPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Payments.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.publish(r.Context(), events.NewPaymentStatusChanged(p))
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePayment(e, p) })
}
