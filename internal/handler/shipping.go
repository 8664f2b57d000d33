package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/shipping"
	"github.com/xenking/gmarket/internal/events"
)

func (h *Handler) createShipment(w http.ResponseWriter, r *http.Request) {
	req := shipping.CreateRequest{OrderID: r.PathValue("id")}
	err := readBody(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "courier_id":
			req.CourierID, err = d.Str()
		case "address":
			req.Address, err = d.Str()
		case "city":
			req.City, err = d.Str()
		case "region":
			req.Region, err = d.Str()
		case "postal_code":
			req.PostalCode, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	sh, err := h.svc.Shipping.CreateShipment(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.publish(r.Context(), events.NewShipmentCreated(sh))
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeShipment(e, sh) })
}

func (h *Handler) getOrderShipment(w http.ResponseWriter, r *http.Request) {
	o, err := h.ownedOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	sh, err := h.svc.Shipping.GetByOrder(r.Context(), o.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeShipment(e, sh) })
}

func (h *Handler) getShipment(w http.ResponseWriter, r *http.Request) {
	sh, err := h.svc.Shipping.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeShipment(e, sh) })
}

func (h *Handler) updateShipmentStatus(w http.ResponseWriter, r *http.Request) {
	var (
		status    string
		delivered *time.Time
	)
	err := readBody(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := d.Str()
			status = s
			return err
		case "delivery_date":
			if d.Next() == jx.Null {
				return d.Null()
			}
			t, err := decodeTime(d, key)
			delivered = &t
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	sh, err := h.svc.Shipping.UpdateStatus(r.Context(), r.PathValue("id"), status, delivered)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.publish(r.Context(), events.NewShipmentStatusChanged(sh))
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeShipment(e, sh) })
}

func (h *Handler) cancelShipment(w http.ResponseWriter, r *http.Request) {
	sh, err := h.svc.Shipping.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.publish(r.Context(), events.NewShipmentStatusChanged(sh))
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeShipment(e, sh) })
}

func (h *Handler) listCouriers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := shipping.CourierFilter{Region: q.Get("region")}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, fault.Validationf("active must be true or false"))
			return
		}
		f.Active = &active
	}

	list, err := h.svc.Shipping.ListCouriers(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range list {
			encodeCourier(e, &list[i])
		}
		e.ArrEnd()
	})
}

func (h *Handler) createCourier(w http.ResponseWriter, r *http.Request) {
	var req shipping.CourierRequest
	err := readBody(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "name":
			req.Name, err = d.Str()
		case "phone", "phone_number":
			req.Phone, err = d.Str()
		case "email":
			req.Email, err = d.Str()
		case "region":
			req.Region, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.svc.Shipping.CreateCourier(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCourier(e, c) })
}

func (h *Handler) getCourier(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Shipping.GetCourier(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCourier(e, c) })
}

func (h *Handler) updateCourier(w http.ResponseWriter, r *http.Request) {
	var upd shipping.CourierUpdate
	str := func(d *jx.Decoder) (*string, error) {
		v, err := d.Str()
		return &v, err
	}
	err := readBody(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "name":
			upd.Name, err = str(d)
		case "phone", "phone_number":
			upd.Phone, err = str(d)
		case "email":
			upd.Email, err = str(d)
		case "region":
			upd.Region, err = str(d)
		case "is_active", "isActive":
			var v bool
			v, err = d.Bool()
			upd.IsActive = &v
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.svc.Shipping.UpdateCourier(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCourier(e, c) })
}

func (h *Handler) deactivateCourier(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Shipping.DeactivateCourier(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCourier(e, c) })
}
