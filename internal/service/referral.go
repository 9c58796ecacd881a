package service

import (
	"context"
	"errors"
	"fmt"

	"mallledger/internal/model"
	"mallledger/internal/repository"
	"mallledger/pkg/errno"
	"mallledger/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type TeamMember struct {
	UserID      int64  `json:"user_id"`
	Name        string `json:"name"`
	MemberLevel int    `json:"member_level"`
	Layer       int    `json:"layer"`
}

// ReferralService 推荐关系维护与团队查询
type ReferralService struct {
	db           *gorm.DB
	rules        *Rules
	userRepo     *repository.UserRepository
	referralRepo *repository.ReferralRepository
}

func NewReferralService(db *gorm.DB, rules *Rules) *ReferralService {
	return &ReferralService{
		db:           db,
		rules:        rules,
		userRepo:     repository.NewUserRepository(db),
		referralRepo: repository.NewReferralRepository(db),
	}
}

// SetReferrer 绑定推荐人：推荐人必须存在，不能是自己，只能绑定一次，不能成环
func (s *ReferralService) SetReferrer(ctx context.Context, userID, referrerID int64) error {
	if userID == referrerID {
		return errno.Finance("不能设置自己为推荐人")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.userRepo.GetByID(ctx, tx, referrerID); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return errno.Finance("推荐人不存在: %d", referrerID)
			}
			return err
		}
		if err := s.userRepo.EnsureExists(ctx, tx, userID, fmt.Sprintf("user-%d", userID)); err != nil {
			return err
		}

		if _, found, err := s.referralRepo.GetReferrer(ctx, tx, userID); err != nil {
			return err
		} else if found {
			return errno.Finance("用户已存在推荐人，无法重复设置")
		}

		// 从推荐人向上走，遇到 userID 说明会成环
		visited := map[int64]bool{referrerID: true}
		current := referrerID
		for {
			next, found, err := s.referralRepo.GetReferrer(ctx, tx, current)
			if err != nil {
				return err
			}
			if !found {
				break
			}
			if next == userID {
				return errno.Finance("推荐关系不能成环")
			}
			if visited[next] {
				logger.Error("[Referral] 已有推荐链存在环", zap.Int64("user_id", next))
				break
			}
			visited[next] = true
			current = next
		}

		if err := s.referralRepo.Create(ctx, tx, userID, referrerID); err != nil {
			if errors.Is(err, repository.ErrReferrerExists) {
				return errno.Finance("用户已存在推荐人，无法重复设置")
			}
			return err
		}
		logger.Info("[Referral] 推荐人绑定成功", zap.Int64("user_id", userID), zap.Int64("referrer_id", referrerID))
		return nil
	})
}

// GetTeam 按层展开下级，最多 maxLayer 层
func (s *ReferralService) GetTeam(ctx context.Context, tx *gorm.DB, userID int64, maxLayer int) ([]TeamMember, error) {
	if maxLayer <= 0 || maxLayer > s.rules.MaxTeamLayer {
		maxLayer = s.rules.MaxTeamLayer
	}

	var team []TeamMember
	visited := map[int64]bool{userID: true}
	frontier := []int64{userID}
	for layer := 1; layer <= maxLayer && len(frontier) > 0; layer++ {
		children, err := s.referralRepo.ListDirect(ctx, tx, frontier)
		if err != nil {
			return nil, err
		}
		var next []int64
		for _, id := range children {
			if visited[id] {
				continue
			}
			visited[id] = true
			next = append(next, id)
		}
		users, err := s.usersByID(ctx, tx, next)
		if err != nil {
			return nil, err
		}
		for _, id := range next {
			m := TeamMember{UserID: id, Layer: layer}
			if u, ok := users[id]; ok {
				m.Name = u.Name
				m.MemberLevel = u.MemberLevel
			}
			team = append(team, m)
		}
		frontier = next
	}
	return team, nil
}

func (s *ReferralService) usersByID(ctx context.Context, tx *gorm.DB, ids []int64) (map[int64]*model.UserLedger, error) {
	out := make(map[int64]*model.UserLedger, len(ids))
	for _, id := range ids {
		u, err := s.userRepo.GetByID(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				continue
			}
			return nil, err
		}
		out[id] = u
	}
	return out, nil
}
