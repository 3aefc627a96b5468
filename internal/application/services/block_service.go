package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
	"github.com/codeweberdotcom/limitguard/internal/core/ports"
)

// BlockService manages administrator-created blocks. The LimitStore write path
// keeps the durable record and the primary cache coherent; listing reads the
// system of record directly.
type BlockService struct {
	store  ports.LimitStore
	repo   ports.BlockRepository
	logger *logrus.Logger
}

func NewBlockService(store ports.LimitStore, repo ports.BlockRepository, logger *logrus.Logger) *BlockService {
	return &BlockService{store: store, repo: repo, logger: logger}
}

// CreateBlock validates and stores a manual block. When an active block
// already covers the target, it fails with ErrBlockExists unless Overwrite is
// set, in which case reason/notes/expiry are replaced in place.
func (s *BlockService) CreateBlock(ctx context.Context, req *ratelimit.CreateBlockRequest) (*ratelimit.ManualBlock, error) {
	if req.Module == "" {
		return nil, fmt.Errorf("%w: module is required", ratelimit.ErrValidation)
	}
	if req.Reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ratelimit.ErrValidation)
	}
	if req.DurationMs < 0 {
		return nil, fmt.Errorf("%w: duration_ms must not be negative", ratelimit.ErrValidation)
	}
	value, err := ratelimit.NormalizeTarget(req.TargetType, req.TargetValue)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.GetBlock(ctx, req.Module, req.TargetType, value)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	block := &ratelimit.ManualBlock{
		ID:          uuid.New(),
		Module:      req.Module,
		TargetType:  req.TargetType,
		TargetValue: value,
		Reason:      req.Reason,
		Notes:       req.Notes,
		BlockedBy:   req.BlockedBy,
		CreatedAt:   now,
	}
	if req.DurationMs > 0 {
		expiresAt := now.Add(time.Duration(req.DurationMs) * time.Millisecond)
		block.ExpiresAt = &expiresAt
	}

	if existing != nil && existing.ActiveAt(now) {
		if !req.Overwrite {
			return nil, ratelimit.ErrBlockExists
		}
		// Replace in place rather than stacking a duplicate.
		block.ID = existing.ID
		block.CreatedAt = existing.CreatedAt
	}

	if err := s.store.SetBlock(ctx, block); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"module":       block.Module,
			"target_type":  block.TargetType,
			"target_value": block.TargetValue,
			"overwrite":    existing != nil,
		}).Info("manual block stored")
	}
	return block, nil
}

// RevokeBlock ends the active block for the target. The block row is retained
// for audit; only its revoked state flips.
func (s *BlockService) RevokeBlock(ctx context.Context, module string, targetType ratelimit.TargetType, targetValue string, revokedBy string) error {
	value, err := ratelimit.NormalizeTarget(targetType, targetValue)
	if err != nil {
		return err
	}
	if err := s.store.ClearBlock(ctx, module, targetType, value); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"module":       module,
			"target_type":  targetType,
			"target_value": value,
			"revoked_by":   revokedBy,
		}).Info("manual block revoked")
	}
	return nil
}

func (s *BlockService) ListBlocks(ctx context.Context, module string, activeOnly bool) ([]*ratelimit.ManualBlock, error) {
	return s.repo.ListBlocks(ctx, module, activeOnly)
}
