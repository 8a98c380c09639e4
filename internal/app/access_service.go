package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jaonoctus/lndoor/internal/clock"
	"github.com/jaonoctus/lndoor/internal/domain"
	"github.com/jaonoctus/lndoor/internal/lightning"
)

type GrantRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CountPending(ctx context.Context) (int, error)
	ListPendingForUpdate(ctx context.Context) ([]string, error)
	MarkConsumed(ctx context.Context, ids []string, now time.Time) (int64, error)
	CreateGrant(ctx context.Context, grant domain.Grant) error
}

// AccessService coordinates the two halves of the door: selling invoices
// and handing out the open signal exactly once per settled payment.
type AccessService struct {
	repo   GrantRepository
	ln     lightning.Client
	clock  clock.Clock
	logger *log.Logger

	price            int64
	memo             string
	resubscribeDelay time.Duration

	// mu serializes the pending check against invoice creation so two
	// concurrent requests cannot both pass the gate.
	mu               sync.Mutex
	pendingInvoiceID string
}

const defaultResubscribeDelay = 5 * time.Second

func NewAccessService(repo GrantRepository, ln lightning.Client, clk clock.Clock, price int64, opts ...AccessServiceOption) *AccessService {
	svc := &AccessService{
		repo:             repo,
		ln:               ln,
		clock:            clk,
		logger:           log.Default(),
		price:            price,
		memo:             "open sesame",
		resubscribeDelay: defaultResubscribeDelay,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type AccessServiceOption func(*AccessService)

// WithLogger overrides the logger used by background watchers.
func WithLogger(logger *log.Logger) AccessServiceOption {
	return func(s *AccessService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithResubscribeDelay overrides the wait between subscription attempts
// after a stream failure.
func WithResubscribeDelay(d time.Duration) AccessServiceOption {
	return func(s *AccessService) {
		if d > 0 {
			s.resubscribeDelay = d
		}
	}
}

// RequestInvoice mints a new invoice unless an earlier payment is still
// unredeemed: either an invoice awaiting settlement or a grant the door
// has not consumed yet. The returned string is the encoded payment
// request for the client to pay.
func (s *AccessService) RequestInvoice(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingInvoiceID != "" {
		return "", domain.ErrInvoiceAlreadyPending
	}

	pending, err := s.repo.CountPending(ctx)
	if err != nil {
		return "", err
	}
	if pending > 0 {
		return "", domain.ErrInvoiceAlreadyPending
	}

	inv, err := s.ln.CreateInvoice(ctx, s.price, s.memo)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvoiceCreationFailed, err)
	}

	s.pendingInvoiceID = inv.ID

	// The watcher outlives the request; settlement can arrive long after
	// the response went out.
	go s.watchInvoice(context.WithoutCancel(ctx), inv.ID)

	return inv.PaymentRequest, nil
}

// PollDoor claims every pending grant and reports whether the door
// should open. Claiming runs inside one transaction with the pending
// rows locked, so each grant opens the door exactly once no matter how
// many controllers poll concurrently.
func (s *AccessService) PollDoor(ctx context.Context) (domain.DoorSignal, error) {
	signal := domain.SignalClosed

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		ids, err := s.repo.ListPendingForUpdate(txCtx)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if _, err := s.repo.MarkConsumed(txCtx, ids, s.clock.Now()); err != nil {
			return err
		}
		signal = domain.SignalOpen
		return nil
	})
	if err != nil {
		return domain.SignalClosed, err
	}
	return signal, nil
}

// watchInvoice follows one invoice until it settles or is canceled,
// re-subscribing when the stream drops. On settlement it records the
// grant; either way it releases the pending-invoice gate afterwards.
func (s *AccessService) watchInvoice(ctx context.Context, invoiceID string) {
	defer s.clearPending(invoiceID)

	for {
		updates, errs, err := s.ln.SubscribeInvoice(ctx, invoiceID)
		if err != nil {
			s.logger.Printf("WARN: subscribe invoice %s: %v, retrying", invoiceID, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.resubscribeDelay):
				continue
			}
		}

	stream:
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errs:
				if ok && err != nil {
					s.logger.Printf("WARN: invoice %s stream: %v, reconnecting", invoiceID, err)
				}
				break stream
			case update, ok := <-updates:
				if !ok {
					break stream
				}
				switch {
				case update.Confirmed:
					s.logger.Printf("payment received invoice=%s", invoiceID)
					s.recordPayment(ctx, invoiceID)
					return
				case update.Canceled:
					s.logger.Printf("payment expired or canceled invoice=%s", invoiceID)
					return
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.resubscribeDelay):
		}
	}
}

func (s *AccessService) recordPayment(ctx context.Context, invoiceID string) {
	grant := domain.Grant{
		ID:        newUUID(),
		InvoiceID: invoiceID,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.CreateGrant(ctx, grant); err != nil {
		// A duplicate settlement delivery already created the grant.
		if errors.Is(err, domain.ErrGrantExists) {
			return
		}
		s.logger.Printf("ERROR: create grant for invoice %s: %v", invoiceID, err)
	}
}

func (s *AccessService) clearPending(invoiceID string) {
	s.mu.Lock()
	if s.pendingInvoiceID == invoiceID {
		s.pendingInvoiceID = ""
	}
	s.mu.Unlock()
}
