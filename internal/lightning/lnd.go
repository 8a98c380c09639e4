package lightning

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"github.com/lightningnetwork/lnd/macaroons"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"gopkg.in/macaroon.v2"
)

// LNDConfig carries the connection material for an LND node. Cert and
// Macaroon are base64 strings as handed out by most node bundles, not
// file paths.
type LNDConfig struct {
	Host     string
	Cert     string
	Macaroon string
}

// LND implements Client against an LND node over gRPC.
type LND struct {
	ln       lnrpc.LightningClient
	invoices invoicesrpc.InvoicesClient
	conn     *grpc.ClientConn
}

// NewLND dials the node. The connection is lazy; a bad host surfaces on
// the first RPC rather than here.
func NewLND(cfg LNDConfig) (*LND, error) {
	certBytes, err := base64.StdEncoding.DecodeString(cfg.Cert)
	if err != nil {
		return nil, fmt.Errorf("decode tls cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(certBytes) {
		return nil, fmt.Errorf("tls cert: no PEM certificates found")
	}

	macBytes, err := base64.StdEncoding.DecodeString(cfg.Macaroon)
	if err != nil {
		// Some setups export the macaroon hex-encoded instead.
		macBytes, err = hex.DecodeString(cfg.Macaroon)
		if err != nil {
			return nil, fmt.Errorf("decode macaroon: %w", err)
		}
	}
	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return nil, fmt.Errorf("unmarshal macaroon: %w", err)
	}
	macCred, err := macaroons.NewMacaroonCredential(mac)
	if err != nil {
		return nil, fmt.Errorf("macaroon credential: %w", err)
	}

	conn, err := grpc.NewClient(cfg.Host,
		grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{RootCAs: pool})),
		grpc.WithPerRPCCredentials(macCred),
	)
	if err != nil {
		return nil, fmt.Errorf("dial lnd: %w", err)
	}

	return &LND{
		ln:       lnrpc.NewLightningClient(conn),
		invoices: invoicesrpc.NewInvoicesClient(conn),
		conn:     conn,
	}, nil
}

// Close closes the underlying gRPC connection.
func (c *LND) Close() error {
	return c.conn.Close()
}

func (c *LND) CreateInvoice(ctx context.Context, tokens int64, memo string) (Invoice, error) {
	resp, err := c.ln.AddInvoice(ctx, &lnrpc.Invoice{
		Value: tokens,
		Memo:  memo,
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("add invoice: %w", err)
	}
	return Invoice{
		ID:             hex.EncodeToString(resp.RHash),
		PaymentRequest: resp.PaymentRequest,
	}, nil
}

func (c *LND) SubscribeInvoice(ctx context.Context, id string) (<-chan InvoiceUpdate, <-chan error, error) {
	hash, err := hex.DecodeString(id)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid invoice id: %w", err)
	}

	stream, err := c.invoices.SubscribeSingleInvoice(ctx, &invoicesrpc.SubscribeSingleInvoiceRequest{
		RHash: hash,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe invoice: %w", err)
	}

	updates := make(chan InvoiceUpdate)
	errs := make(chan error, 1)

	go func() {
		defer close(updates)
		defer close(errs)

		for {
			inv, err := stream.Recv()
			if err != nil {
				errs <- err
				return
			}

			update := InvoiceUpdate{
				ID:        hex.EncodeToString(inv.RHash),
				Confirmed: inv.State == lnrpc.Invoice_SETTLED,
				Canceled:  inv.State == lnrpc.Invoice_CANCELED,
			}

			select {
			case updates <- update:
			case <-ctx.Done():
				return
			}

			// The stream stays open after a terminal state; stop here so
			// the goroutine does not linger per settled invoice.
			if update.Confirmed || update.Canceled {
				return
			}
		}
	}()

	return updates, errs, nil
}
