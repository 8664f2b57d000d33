package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/gmarket/internal/domain/fault"
)

var kindStatus = map[fault.Kind]int{
	fault.KindNotFound:          http.StatusNotFound,
	fault.KindInsufficientStock: http.StatusConflict,
	fault.KindInvalidOrderItem:  http.StatusUnprocessableEntity,
	fault.KindPaymentExists:     http.StatusConflict,
	fault.KindShipmentExists:    http.StatusConflict,
	fault.KindInvalidMethod:     http.StatusBadRequest,
	fault.KindInvalidStatus:     http.StatusBadRequest,
	fault.KindIllegalTransition: http.StatusConflict,
	fault.KindValidation:        http.StatusBadRequest,
}

// StatusOf returns the HTTP status an error is reported with.
func StatusOf(err error) int {
	if code, ok := kindStatus[fault.KindOf(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// writeError maps err to a status code and a {"code","kind","message"} body.
// Internal errors are logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusOf(err)
	kind := fault.KindOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal server error"
	}
	writeProblem(w, code, string(kind), msg)
}

func writeProblem(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(code) })
			e.Field("kind", func(e *jx.Encoder) { e.Str(kind) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}
