package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/careforall/settlement/internal/bus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BankAPI is what the payment service needs from the bank. The
// production implementation is an HTTP client; tests pass the ledger
// service directly since it satisfies the same shape.
type BankAPI interface {
	AuthorizePayment(ctx context.Context, accountNumber string, amount decimal.Decimal, reference string) (holdID string, err error)
	CapturePayment(ctx context.Context, holdID string) (transactionID string, err error)
	ReleaseHold(ctx context.Context, holdID string) error
}

// WebhookSender delivers a settlement event to the webhook endpoint.
// Production POSTs over HTTP to the configured URL; the endpoint itself
// is idempotency-guarded, which makes redelivery after a timeout safe.
type WebhookSender interface {
	Send(ctx context.Context, evt SettlementEvent) error
}

// SettlementEvent is the webhook payload. EventID is the idempotency
// key and is derived purely from the operation's identifying content so
// retries reproduce the same key.
type SettlementEvent struct {
	EventID       string `json:"eventId"`
	PledgeID      uint64 `json:"pledgeId"`
	Status        string `json:"status"`
	HoldID        string `json:"holdId,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	Error         string `json:"error,omitempty"`
}

// PaymentService is the settlement orchestrator: it drives the bank's
// authorize/capture lifecycle and routes the outcome through the
// webhook path into the message bus.
type PaymentService struct {
	bank    BankAPI
	webhook WebhookSender
	bus     bus.Publisher
	log     *zap.SugaredLogger
}

func NewPaymentService(bank BankAPI, webhook WebhookSender, publisher bus.Publisher, logger *zap.SugaredLogger) *PaymentService {
	return &PaymentService{bank: bank, webhook: webhook, bus: publisher, log: logger}
}

// Authorize asks the bank to place a hold for the pledge, then delivers
// the outcome as a settlement event. Bank business failures become a
// "failed" event, not an error; only I/O failures propagate.
func (s *PaymentService) Authorize(ctx context.Context, pledgeID uint64, accountNumber string, amount decimal.Decimal) (SettlementEvent, error) {
	reference := pledgeReference(pledgeID)
	holdID, err := s.bank.AuthorizePayment(ctx, accountNumber, amount, reference)

	var evt SettlementEvent
	switch {
	case err == nil:
		evt = SettlementEvent{
			EventID:  fmt.Sprintf("auth:%d:%s", pledgeID, holdID),
			PledgeID: pledgeID,
			Status:   "authorized",
			HoldID:   holdID,
		}
	case IsBusinessErr(err):
		evt = SettlementEvent{
			EventID:  fmt.Sprintf("auth:%d:failed", pledgeID),
			PledgeID: pledgeID,
			Status:   "failed",
			Error:    err.Error(),
		}
	default:
		return SettlementEvent{}, err
	}

	if err := s.webhook.Send(ctx, evt); err != nil {
		// Delivery is retried by the caller; the guarded endpoint makes
		// the retry a no-op if the first attempt actually landed.
		return evt, fmt.Errorf("deliver settlement event %s: %w", evt.EventID, err)
	}
	return evt, nil
}

// Capture converts the hold into a debit and delivers captured/failed
// the same way.
func (s *PaymentService) Capture(ctx context.Context, pledgeID uint64, holdID string) (SettlementEvent, error) {
	transactionID, err := s.bank.CapturePayment(ctx, holdID)

	var evt SettlementEvent
	switch {
	case err == nil:
		evt = SettlementEvent{
			EventID:       fmt.Sprintf("capt:%d:%s", pledgeID, transactionID),
			PledgeID:      pledgeID,
			Status:        "captured",
			HoldID:        holdID,
			TransactionID: transactionID,
		}
	case IsBusinessErr(err):
		evt = SettlementEvent{
			EventID:  fmt.Sprintf("capt:%d:%s:failed", pledgeID, holdID),
			PledgeID: pledgeID,
			Status:   "failed",
			HoldID:   holdID,
			Error:    err.Error(),
		}
	default:
		return SettlementEvent{}, err
	}

	if err := s.webhook.Send(ctx, evt); err != nil {
		return evt, fmt.Errorf("deliver settlement event %s: %w", evt.EventID, err)
	}
	return evt, nil
}

// HandleWebhook is the guarded endpoint's handler: it fans the
// settlement outcome into the bus as payment.update. The idempotency
// middleware in front of it guarantees at most one publish per eventId.
func (s *PaymentService) HandleWebhook(ctx context.Context, evt SettlementEvent) error {
	payload, err := json.Marshal(PaymentUpdate{PledgeID: evt.PledgeID, Status: evt.Status})
	if err != nil {
		return err
	}
	if err := s.bus.Publish(ctx, TopicPaymentUpdate, payload); err != nil {
		return fmt.Errorf("publish payment.update: %w", err)
	}
	s.log.Infof("webhook processed: event=%s pledge=%d status=%s", evt.EventID, evt.PledgeID, evt.Status)
	return nil
}

// SimulateProvider mimics an external payment provider for demos and
// load tests: 90% success, no side effects.
func (s *PaymentService) SimulateProvider(pledgeID uint64) (status, transactionID string) {
	if rand.Float64() > 0.1 {
		status = "succeeded"
	} else {
		status = "failed"
	}
	return status, fmt.Sprintf("tx_%d_%d", pledgeID, rand.Int63())
}

func pledgeReference(pledgeID uint64) string {
	return fmt.Sprintf("pledge_%d", pledgeID)
}
