package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
	"github.com/jerealeksanteri/skilta-piikki/internal/infra/observability"
	"github.com/jerealeksanteri/skilta-piikki/internal/port"
)

var directoryTracer = otel.Tracer("service/directory")

const leaderboardCacheKey = "leaderboard"

// DirectoryService manages the member roster: profiles, the leaderboard, and
// the admin lifecycle operations.
type DirectoryService struct {
	store   port.Store
	cache   port.Cache[[]domain.Member]
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewDirectoryService creates a new directory service.
func NewDirectoryService(store port.Store, cache port.Cache[[]domain.Member], metrics *observability.Metrics, logger *zap.Logger) *DirectoryService {
	return &DirectoryService{
		store:   store,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// ============================================================
// Me — GET /v1/me
// ============================================================

// Profile assembles the member's own view: current-period balance, the total
// still owed from closed periods, and their sum. Paid debts are excluded.
func (s *DirectoryService) Profile(ctx context.Context, member *domain.Member) (*domain.Profile, error) {
	ctx, span := directoryTracer.Start(ctx, "DirectoryService.Profile")
	defer span.End()

	debtTotal, err := s.store.SumMemberOpenDebts(ctx, member.ID)
	if err != nil {
		return nil, fmt.Errorf("sum open debts: %w", err)
	}

	return &domain.Profile{
		Member:          *member,
		FiscalDebtTotal: debtTotal,
		TotalBalance:    member.Balance.Sub(debtTotal),
	}, nil
}

// ============================================================
// Roster
// ============================================================

func (s *DirectoryService) ListMembers(ctx context.Context, actor *domain.Member) ([]domain.Member, error) {
	if err := requireAdmin(actor, "list members"); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx)
}

// Leaderboard returns active members by balance, best first. Served from a
// short-lived cache; ledger mutations invalidate it.
func (s *DirectoryService) Leaderboard(ctx context.Context, actor *domain.Member) ([]domain.Member, error) {
	ctx, span := directoryTracer.Start(ctx, "DirectoryService.Leaderboard")
	defer span.End()

	if err := requireActive(actor, "view leaderboard"); err != nil {
		return nil, err
	}

	if cached, ok := s.cache.Get(leaderboardCacheKey); ok {
		s.metrics.IncrCacheHit(leaderboardCacheKey)
		return cached, nil
	}
	s.metrics.IncrCacheMiss(leaderboardCacheKey)

	members, err := s.store.ListLeaderboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("list leaderboard: %w", err)
	}
	s.cache.Set(leaderboardCacheKey, members)
	return members, nil
}

// ============================================================
// Admin lifecycle operations
// ============================================================

// AddMember whitelists a Telegram identity ahead of first contact. The
// member lands directly in active status.
func (s *DirectoryService) AddMember(ctx context.Context, actor *domain.Member, in *domain.NewMemberInput) (*domain.Member, error) {
	ctx, span := directoryTracer.Start(ctx, "DirectoryService.AddMember")
	defer span.End()

	if err := requireAdmin(actor, "add member"); err != nil {
		return nil, err
	}
	if in.TelegramID <= 0 {
		return nil, &domain.ErrValidation{Field: "telegram_id", Message: "telegram_id must be positive"}
	}
	if strings.TrimSpace(in.FirstName) == "" {
		return nil, &domain.ErrValidation{Field: "first_name", Message: "first_name must not be empty"}
	}

	existing, err := s.store.GetMemberByTelegramID(ctx, in.TelegramID)
	if err != nil {
		return nil, fmt.Errorf("check existing member: %w", err)
	}
	if existing != nil {
		return nil, &domain.ErrConflict{Message: "member with this telegram_id already exists"}
	}

	member, err := s.store.CreateMember(ctx, in, domain.RoleMember, domain.MemberActive, &actor.ID)
	if err != nil {
		return nil, fmt.Errorf("create member: %w", err)
	}

	s.invalidateLeaderboard()
	s.logger.Info("member added",
		zap.Int64("member_id", member.ID),
		zap.Int64("added_by", actor.ID),
	)
	return member, nil
}

func (s *DirectoryService) Activate(ctx context.Context, actor *domain.Member, id int64) (*domain.Member, error) {
	if err := requireAdmin(actor, "activate member"); err != nil {
		return nil, err
	}
	member, err := s.store.ActivateMember(ctx, id)
	if err != nil {
		return nil, err
	}
	s.invalidateLeaderboard()
	s.logger.Info("member activated", zap.Int64("member_id", id), zap.Int64("by", actor.ID))
	return member, nil
}

// Deactivate sends the member back to pending and zeroes their balance.
// An admin cannot deactivate themself out of the last admin seat.
func (s *DirectoryService) Deactivate(ctx context.Context, actor *domain.Member, id int64) (*domain.Member, error) {
	if err := requireAdmin(actor, "deactivate member"); err != nil {
		return nil, err
	}
	member, err := s.store.DeactivateMember(ctx, id)
	if err != nil {
		return nil, err
	}
	s.invalidateLeaderboard()
	s.logger.Info("member deactivated", zap.Int64("member_id", id), zap.Int64("by", actor.ID))
	return member, nil
}

func (s *DirectoryService) Promote(ctx context.Context, actor *domain.Member, id int64) (*domain.Member, error) {
	if err := requireAdmin(actor, "promote member"); err != nil {
		return nil, err
	}
	member, err := s.store.PromoteMember(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("member promoted to admin", zap.Int64("member_id", id), zap.Int64("by", actor.ID))
	return member, nil
}

func (s *DirectoryService) Demote(ctx context.Context, actor *domain.Member, id int64) (*domain.Member, error) {
	if err := requireAdmin(actor, "demote member"); err != nil {
		return nil, err
	}
	member, err := s.store.DemoteMember(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("member demoted", zap.Int64("member_id", id), zap.Int64("by", actor.ID))
	return member, nil
}

// DeactivateAll resets the roster between seasons: every active non-admin
// member back to pending, balances zeroed.
func (s *DirectoryService) DeactivateAll(ctx context.Context, actor *domain.Member) (int, error) {
	ctx, span := directoryTracer.Start(ctx, "DirectoryService.DeactivateAll")
	defer span.End()

	if err := requireAdmin(actor, "deactivate all members"); err != nil {
		return 0, err
	}
	affected, err := s.store.DeactivateAllMembers(ctx)
	if err != nil {
		return 0, fmt.Errorf("deactivate all: %w", err)
	}
	s.invalidateLeaderboard()
	s.logger.Info("roster reset", zap.Int("deactivated", affected), zap.Int64("by", actor.ID))
	return affected, nil
}

func (s *DirectoryService) invalidateLeaderboard() {
	s.cache.Delete(leaderboardCacheKey)
}
