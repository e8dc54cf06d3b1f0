package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/careforall/settlement/internal/repo"
	"github.com/careforall/settlement/internal/state"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CampaignService consumes pledge.updated events. Only a CAPTURED
// pledge moves money for real, so only then does the campaign total
// grow and the cached campaign pages get invalidated.
type CampaignService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

func NewCampaignService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *CampaignService {
	return &CampaignService{repo: r, log: logger}
}

func (s *CampaignService) HandlePledgeUpdated(ctx context.Context, payload []byte) error {
	var evt PledgeEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		s.log.Warnf("malformed pledge.updated payload, dropping: %v", err)
		return nil
	}
	if state.Status(evt.Status) != state.Captured {
		return nil
	}

	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		total, err := s.repo.IncrementCampaignAmount(ctx, tx, evt.CampaignID, evt.Amount)
		if err != nil {
			return err
		}
		s.log.Infof("campaign %d total now %s (+%s)", evt.CampaignID, total, evt.Amount)
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Errorf("campaign not found: %d", evt.CampaignID)
			return nil
		}
		return err
	}

	if err := s.repo.InvalidateCampaignCache(ctx, evt.CampaignID); err != nil {
		// The totals row is already correct; a stale cache entry heals on
		// the next invalidation.
		s.log.Warnf("invalidate cache for campaign %d: %v", evt.CampaignID, err)
	}
	return nil
}
