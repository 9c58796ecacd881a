package service

import (
	"context"

	"mallledger/internal/repository"
	"mallledger/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// directorTeamDepth 统计团队人数时向下展开的层数
const directorTeamDepth = 6

// DirectorService 荣誉董事晋升审核
type DirectorService struct {
	db           *gorm.DB
	rules        *Rules
	referrals    *ReferralService
	userRepo     *repository.UserRepository
	referralRepo *repository.ReferralRepository
}

func NewDirectorService(db *gorm.DB, rules *Rules, referrals *ReferralService) *DirectorService {
	return &DirectorService{
		db:           db,
		rules:        rules,
		referrals:    referrals,
		userRepo:     repository.NewUserRepository(db),
		referralRepo: repository.NewReferralRepository(db),
	}
}

// CheckPromotion 满级用户直推满级人数和团队满级人数都达标时晋升，返回新晋升人数
func (s *DirectorService) CheckPromotion(ctx context.Context) (int, error) {
	top := s.rules.MaxMemberLevel
	candidates, err := s.userRepo.ListByMemberLevel(ctx, nil, top)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, user := range candidates {
		if user.IsHonorDirector {
			continue
		}

		direct, err := s.referralRepo.ListDirect(ctx, nil, []int64{user.ID})
		if err != nil {
			return promoted, err
		}
		directCount, err := s.userRepo.CountByLevel(ctx, nil, direct, top)
		if err != nil {
			return promoted, err
		}
		if directCount < int64(s.rules.DirectorDirectRequired) {
			continue
		}

		team, err := s.referrals.GetTeam(ctx, nil, user.ID, directorTeamDepth)
		if err != nil {
			return promoted, err
		}
		teamCount := 0
		for _, m := range team {
			if m.MemberLevel >= top {
				teamCount++
			}
		}
		if teamCount < s.rules.DirectorTeamRequired {
			continue
		}

		ok, err := s.userRepo.SetHonorDirector(ctx, nil, user.ID)
		if err != nil {
			return promoted, err
		}
		if ok {
			promoted++
			logger.Info("[Director] 用户晋升为荣誉董事",
				zap.Int64("user_id", user.ID), zap.Int64("direct", directCount), zap.Int("team", teamCount))
		}
	}

	logger.Info("[Director] 荣誉董事审核完成", zap.Int("promoted", promoted))
	return promoted, nil
}
