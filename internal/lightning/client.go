package lightning

import "context"

// Invoice is a freshly minted payment request. ID is the hex-encoded
// payment hash, which is also how the payment network identifies the
// invoice in update streams.
type Invoice struct {
	ID             string
	PaymentRequest string
}

// InvoiceUpdate is one state change reported for a single invoice.
// Confirmed and Canceled are terminal and mutually exclusive.
type InvoiceUpdate struct {
	ID        string
	Confirmed bool
	Canceled  bool
}

// Client is the payment-network boundary: mint an invoice and follow a
// single invoice's lifecycle.
type Client interface {
	// CreateInvoice mints an invoice for the given amount in satoshis.
	CreateInvoice(ctx context.Context, tokens int64, memo string) (Invoice, error)

	// SubscribeInvoice streams updates for one invoice until a terminal
	// state is reached or the stream fails. Both channels are closed when
	// the producer goroutine exits; a stream failure is delivered on the
	// error channel first.
	SubscribeInvoice(ctx context.Context, id string) (<-chan InvoiceUpdate, <-chan error, error)
}
