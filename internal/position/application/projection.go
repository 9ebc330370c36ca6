// Package application 持仓读模型投影服务
package application

import (
	"context"
	"log/slog"

	"github.com/wyfcoding/investmarket/internal/position/domain"
)

// ProjectionService 把 MySQL 中的持仓写模型刷新到 Redis 读缓存。
type ProjectionService struct {
	positions domain.PositionRepository
	snapshots domain.SnapshotRepository
	logger    *slog.Logger
}

func NewProjectionService(positions domain.PositionRepository, snapshots domain.SnapshotRepository, logger *slog.Logger) *ProjectionService {
	return &ProjectionService{positions: positions, snapshots: snapshots, logger: logger}
}

// Refresh 重新读取持仓并覆盖缓存。持仓不存在时静默跳过，事件可能先于行到达。
func (s *ProjectionService) Refresh(ctx context.Context, dealID, holderID string) error {
	position, err := s.positions.GetByDealAndHolder(ctx, dealID, holderID)
	if err != nil {
		return err
	}
	if position == nil {
		return nil
	}

	if err := s.snapshots.Save(ctx, position.ToSnapshot()); err != nil {
		s.logger.ErrorContext(ctx, "failed to refresh position snapshot",
			"deal_id", dealID, "holder_id", holderID, "error", err)
		return err
	}
	return nil
}

// GetSnapshot 先查缓存，未命中回源 MySQL 并回填。
func (s *ProjectionService) GetSnapshot(ctx context.Context, dealID, holderID string) (*domain.Snapshot, error) {
	if snapshot, err := s.snapshots.Get(ctx, dealID, holderID); err == nil && snapshot != nil {
		return snapshot, nil
	}

	position, err := s.positions.GetByDealAndHolder(ctx, dealID, holderID)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, nil
	}

	snapshot := position.ToSnapshot()
	if err := s.snapshots.Save(ctx, snapshot); err != nil {
		s.logger.ErrorContext(ctx, "failed to backfill position snapshot",
			"deal_id", dealID, "holder_id", holderID, "error", err)
	}
	return snapshot, nil
}
