package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jaonoctus/lndoor/internal/domain"
)

// InvoiceRequester is the minimal interface needed to sell an invoice.
type InvoiceRequester interface {
	RequestInvoice(ctx context.Context) (string, error)
}

// HandleCreateInvoice returns an HTTP handler that mints a payment
// request for one door-open.
func HandleCreateInvoice(svc InvoiceRequester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		request, err := svc.RequestInvoice(r.Context())
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvoiceAlreadyPending):
				writeError(w, http.StatusBadRequest, codeInvoiceAlreadyPending, domain.ErrInvoiceAlreadyPending.Error())
				return
			case errors.Is(err, domain.ErrInvoiceCreationFailed):
				writeError(w, http.StatusInternalServerError, codeInvoiceCreateFailed, domain.ErrInvoiceCreationFailed.Error())
				return
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
				return
			}
		}

		resp := invoiceResponse{Invoice: request}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type invoiceResponse struct {
	Invoice string `json:"invoice"`
}
