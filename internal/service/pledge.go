package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/careforall/settlement/internal/model"
	"github.com/careforall/settlement/internal/repo"
	"github.com/careforall/settlement/internal/state"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Bus topics produced by the pledge service's outbox.
const (
	TopicPledgeCreated = "pledge.created"
	TopicPledgeUpdated = "pledge.updated"
	TopicPaymentUpdate = "payment.update"
)

// PledgeEvent is the payload carried by pledge.created and
// pledge.updated.
type PledgeEvent struct {
	ID         uint64          `json:"id"`
	CampaignID uint64          `json:"campaignId"`
	UserID     *uint64         `json:"userId,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
}

// PaymentUpdate is the payload consumed from payment.update.
type PaymentUpdate struct {
	PledgeID uint64 `json:"pledgeId"`
	Status   string `json:"status"`
}

// PledgeService creates pledges and applies inbound settlement events.
// Every state change writes its outbox event in the same transaction.
type PledgeService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

func NewPledgeService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *PledgeService {
	return &PledgeService{repo: r, log: logger}
}

// Create inserts a PENDING pledge and its pledge.created outbox row
// atomically.
func (s *PledgeService) Create(ctx context.Context, campaignID uint64, userID *uint64, amount decimal.Decimal) (*model.Pledge, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	p := &model.Pledge{
		CampaignID: campaignID,
		UserID:     userID,
		Amount:     amount,
		Status:     string(state.Pending),
	}
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.CreatePledge(ctx, tx, p); err != nil {
			return err
		}
		return s.enqueuePledgeEvent(ctx, tx, p, TopicPledgeCreated)
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("pledge created: id=%d campaign=%d", p.ID, p.CampaignID)
	return p, nil
}

// Get returns nil, nil when the pledge does not exist.
func (s *PledgeService) Get(ctx context.Context, id uint64) (*model.Pledge, error) {
	var p model.Pledge
	if err := s.repo.DB(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ApplySettlement handles one payment.update delivery. Invalid
// transitions and same-status redeliveries are dropped, never errored:
// they are stale, duplicate or out-of-order messages, not faults.
// A real change updates the pledge and enqueues pledge.updated in the
// same transaction.
func (s *PledgeService) ApplySettlement(ctx context.Context, pledgeID uint64, providerStatus string) error {
	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.repo.GetPledgeForUpdate(ctx, tx, pledgeID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.log.Errorf("pledge not found: %d", pledgeID)
				return nil
			}
			return err
		}

		current := state.Status(p.Status)
		next := state.FromProviderStatus(providerStatus)
		if !state.CanTransition(current, next) {
			s.log.Warnf("invalid transition for pledge %d: %s -> %s, ignoring", pledgeID, current, next)
			return nil
		}
		if current == next {
			s.log.Infof("pledge %d already at status %s", pledgeID, next)
			return nil
		}

		if err := s.repo.UpdatePledgeStatus(ctx, tx, p.ID, string(next)); err != nil {
			return err
		}
		p.Status = string(next)
		if err := s.enqueuePledgeEvent(ctx, tx, p, TopicPledgeUpdated); err != nil {
			return err
		}
		s.log.Infof("pledge %d updated to %s", pledgeID, next)
		return nil
	})
}

// HandlePaymentUpdate adapts ApplySettlement to the bus handler shape.
func (s *PledgeService) HandlePaymentUpdate(ctx context.Context, payload []byte) error {
	var upd PaymentUpdate
	if err := json.Unmarshal(payload, &upd); err != nil {
		s.log.Warnf("malformed payment.update payload, dropping: %v", err)
		return nil
	}
	return s.ApplySettlement(ctx, upd.PledgeID, upd.Status)
}

func (s *PledgeService) enqueuePledgeEvent(ctx context.Context, tx *gorm.DB, p *model.Pledge, eventType string) error {
	payload, err := json.Marshal(PledgeEvent{
		ID:         p.ID,
		CampaignID: p.CampaignID,
		UserID:     p.UserID,
		Amount:     p.Amount,
		Status:     p.Status,
	})
	if err != nil {
		return err
	}
	return s.repo.CreateOutboxEvent(ctx, tx, &model.OutboxEvent{
		AggregateType: "pledge",
		AggregateID:   strconv.FormatUint(p.ID, 10),
		EventType:     eventType,
		Payload:       string(payload),
	})
}
