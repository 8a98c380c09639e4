package domain

import "errors"

var (
	ErrStoreUnavailable      = errors.New("store unavailable")
	ErrInvoiceCreationFailed = errors.New("failed to create invoice")
	ErrInvoiceAlreadyPending = errors.New("there is already a pending open sesame request")
	ErrGrantExists           = errors.New("grant already exists for invoice")
)
