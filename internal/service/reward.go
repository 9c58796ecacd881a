package service

import (
	"context"
	"errors"
	"fmt"

	"mallledger/internal/metrics"
	"mallledger/internal/model"
	"mallledger/internal/repository"
	"mallledger/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	RewardKindReferral = "referral"
	RewardKindTeam     = "team"
)

// RewardInput 一次升级触发的奖励计算参数
type RewardInput struct {
	OrderNo      string
	BuyerID      int64
	OldLevel     int
	NewLevel     int
	UnitPrice    decimal.Decimal
	TierQuantity int
}

type Payout struct {
	Kind        string          `json:"kind"`
	UserID      int64           `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	TargetLayer int             `json:"target_layer,omitempty"`
	ActualLayer int             `json:"actual_layer,omitempty"`
}

type chainNode struct {
	userID int64
	layer  int
	level  int
}

// RewardService 推荐奖励与团队奖励，两者互斥
type RewardService struct {
	rules        *Rules
	points       *PointService
	userRepo     *repository.UserRepository
	referralRepo *repository.ReferralRepository
	flowRepo     *repository.FlowRepository
	metrics      *metrics.Metrics
}

func NewRewardService(db *gorm.DB, rules *Rules, points *PointService) *RewardService {
	return &RewardService{
		rules:        rules,
		points:       points,
		userRepo:     repository.NewUserRepository(db),
		referralRepo: repository.NewReferralRepository(db),
		flowRepo:     repository.NewFlowRepository(db),
		metrics:      metrics.GetMetrics(),
	}
}

// Distribute 在结算事务内发放升级奖励
func (s *RewardService) Distribute(ctx context.Context, tx *gorm.DB, in RewardInput) ([]Payout, error) {
	if in.NewLevel <= in.OldLevel {
		return nil, nil
	}

	paid, err := s.flowRepo.ExistsByOrderNo(ctx, tx, in.OrderNo,
		string(model.BucketReferralPoints), string(model.BucketTeamRewardPoints))
	if err != nil {
		return nil, fmt.Errorf("查询奖励流水失败: %w", err)
	}
	if paid {
		logger.Warn("[Reward] 订单已发放过奖励，跳过", zap.String("order_no", in.OrderNo))
		return nil, nil
	}

	amount := model.RoundMoney(in.UnitPrice.Mul(s.rules.RewardRate))
	if !amount.IsPositive() {
		return nil, nil
	}

	if in.OldLevel == 0 {
		payout, err := s.payReferral(ctx, tx, in, amount)
		if err != nil {
			return nil, err
		}
		if payout != nil {
			return []Payout{*payout}, nil
		}
	}

	return s.payTeam(ctx, tx, in, amount)
}

func (s *RewardService) payReferral(ctx context.Context, tx *gorm.DB, in RewardInput, amount decimal.Decimal) (*Payout, error) {
	referrerID, found, err := s.referralRepo.GetReferrer(ctx, tx, in.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("查询推荐人失败: %w", err)
	}
	if !found {
		return nil, nil
	}
	referrer, err := s.userRepo.GetByID(ctx, tx, referrerID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if referrer.MemberLevel < 1 {
		return nil, nil
	}

	reason := fmt.Sprintf("推荐奖励: 用户%d 首次升级", in.BuyerID)
	if _, err := s.points.Earn(ctx, tx, referrerID, model.BucketReferralPoints, amount, reason, in.OrderNo); err != nil {
		return nil, fmt.Errorf("发放推荐奖励失败: %w", err)
	}
	s.metrics.RewardPaidTotal.WithLabelValues(RewardKindReferral).Inc()
	return &Payout{Kind: RewardKindReferral, UserID: referrerID, Amount: amount}, nil
}

// walkChain 从买家向上遍历推荐链，最多 MaxTeamLayer 层，遇到环停止
func (s *RewardService) walkChain(ctx context.Context, tx *gorm.DB, buyerID int64) ([]chainNode, error) {
	visited := map[int64]bool{buyerID: true}
	var chain []chainNode

	current := buyerID
	for layer := 1; layer <= s.rules.MaxTeamLayer; layer++ {
		referrerID, found, err := s.referralRepo.GetReferrer(ctx, tx, current)
		if err != nil {
			return nil, fmt.Errorf("查询推荐链失败: %w", err)
		}
		if !found {
			break
		}
		if visited[referrerID] {
			logger.Error("[Reward] 推荐链存在环，停止遍历",
				zap.Int64("buyer_id", buyerID), zap.Int64("user_id", referrerID), zap.Int("layer", layer))
			break
		}
		visited[referrerID] = true

		level := 0
		user, err := s.userRepo.GetByID(ctx, tx, referrerID)
		if err == nil {
			level = user.MemberLevel
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}

		chain = append(chain, chainNode{userID: referrerID, layer: layer, level: level})
		current = referrerID
	}
	return chain, nil
}

func (s *RewardService) payTeam(ctx context.Context, tx *gorm.DB, in RewardInput, amount decimal.Decimal) ([]Payout, error) {
	chain, err := s.walkChain(ctx, tx, in.BuyerID)
	if err != nil {
		return nil, err
	}

	start := in.OldLevel + 1
	if start < 1 {
		start = 1
	}

	var payouts []Payout
	for target := start; target <= in.NewLevel; target++ {
		var picked *chainNode
		for i := range chain {
			node := chain[i]
			if node.layer >= target && node.level >= target && node.userID != in.BuyerID {
				picked = &node
				break
			}
		}
		if picked == nil {
			logger.Debug("[Reward] 没有符合条件的团队奖励对象", zap.String("order_no", in.OrderNo), zap.Int("target_layer", target))
			continue
		}

		reason := fmt.Sprintf("团队奖励: 用户%d 升级到%d星, 目标第%d层, 实际第%d层", in.BuyerID, target, target, picked.layer)
		if _, err := s.points.Earn(ctx, tx, picked.userID, model.BucketTeamRewardPoints, amount, reason, in.OrderNo); err != nil {
			return nil, fmt.Errorf("发放团队奖励失败: %w", err)
		}
		s.metrics.RewardPaidTotal.WithLabelValues(RewardKindTeam).Inc()
		payouts = append(payouts, Payout{
			Kind:        RewardKindTeam,
			UserID:      picked.userID,
			Amount:      amount,
			TargetLayer: target,
			ActualLayer: picked.layer,
		})
	}
	return payouts, nil
}
