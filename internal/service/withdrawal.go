package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mallledger/internal/model"
	"mallledger/internal/repository"
	"mallledger/pkg/errno"
	"mallledger/pkg/idgen"
	"mallledger/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// WithdrawalService 提现申请与审核，税费进入公司余额池
type WithdrawalService struct {
	db     *gorm.DB
	rules  *Rules
	ledger *LedgerService
	points *PointService
	events *EventWriter
	repo   *repository.WithdrawalRepository
}

func NewWithdrawalService(db *gorm.DB, rules *Rules, ledger *LedgerService, points *PointService, events *EventWriter) *WithdrawalService {
	return &WithdrawalService{
		db:     db,
		rules:  rules,
		ledger: ledger,
		points: points,
		events: events,
		repo:   repository.NewWithdrawalRepository(db),
	}
}

// ApplyWithdrawal 扣减余额并计税，大额进入人工审核
func (s *WithdrawalService) ApplyWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal, kind string) (*model.Withdrawal, error) {
	amount = model.RoundMoney(amount)
	if !amount.IsPositive() {
		return nil, errno.Finance("提现金额必须大于 0")
	}
	if kind != model.WithdrawalKindUser && kind != model.WithdrawalKindMerchant {
		return nil, errno.Finance("无效的提现类型: %s", kind)
	}

	tax := model.RoundMoney(amount.Mul(s.rules.TaxRate))
	status := model.WithdrawalStatusPendingAuto
	if amount.GreaterThan(s.rules.ManualAuditThreshold) {
		status = model.WithdrawalStatusPendingManual
	}
	w := &model.Withdrawal{
		WithdrawalNo: idgen.GenerateWithdrawalNo(),
		UserID:       userID,
		Kind:         kind,
		Amount:       amount,
		TaxAmount:    tax,
		ActualAmount: amount.Sub(tax),
		Status:       status,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reason := fmt.Sprintf("提现申请 %s", w.WithdrawalNo)
		if _, err := s.points.Spend(ctx, tx, userID, w.BalanceBucket(), amount, reason, ""); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return errno.Finance("用户不存在: %d", userID)
			}
			return err
		}
		if tax.IsPositive() {
			if _, err := s.ledger.Adjust(ctx, tx, model.PoolCompanyBalance, tax, reason+" 个税", ForUser(userID, "")); err != nil {
				return err
			}
		}
		if err := s.repo.Create(ctx, tx, w); err != nil {
			return fmt.Errorf("创建提现记录失败: %w", err)
		}
		return s.events.Write(ctx, tx, model.EventWithdrawalApplied, w.WithdrawalNo, w)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("[Withdrawal] 提现申请成功",
		zap.String("withdrawal_no", w.WithdrawalNo),
		zap.Int64("user_id", userID),
		zap.String("amount", amount.String()),
		zap.String("status", status))
	return w, nil
}

// AuditWithdrawal 审核提现；拒绝时退回余额并冲回税费
func (s *WithdrawalService) AuditWithdrawal(ctx context.Context, id int64, approve bool, auditor string) (bool, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.repo.GetByID(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repository.ErrWithdrawalNotFound) {
				return errno.Finance("提现记录不存在: %d", id)
			}
			return err
		}
		if !model.IsWithdrawalPending(w.Status) {
			return errno.Finance("提现记录已处理: %s", w.Status)
		}

		now := time.Now()
		updates := map[string]interface{}{
			"auditor":      auditor,
			"processed_at": now,
		}
		if approve {
			updates["status"] = model.WithdrawalStatusApproved
		} else {
			updates["status"] = model.WithdrawalStatusRejected
			reason := fmt.Sprintf("提现驳回 %s", w.WithdrawalNo)
			if _, err := s.points.Earn(ctx, tx, w.UserID, w.BalanceBucket(), w.Amount, reason, ""); err != nil {
				return err
			}
			if w.TaxAmount.IsPositive() {
				if _, err := s.ledger.Adjust(ctx, tx, model.PoolCompanyBalance, w.TaxAmount.Neg(), reason+" 冲回个税", ForUser(w.UserID, "")); err != nil {
					return err
				}
			}
		}

		ok, err := s.repo.FinishAudit(ctx, tx, id, w.Status, updates)
		if err != nil {
			return err
		}
		if !ok {
			return errno.ErrConcurrentUpdate
		}

		w.Status = updates["status"].(string)
		w.Auditor = auditor
		w.ProcessedAt = &now
		return s.events.Write(ctx, tx, model.EventWithdrawalAudited, w.WithdrawalNo, w)
	})
	if err != nil {
		logger.Error("[Withdrawal] 提现审核失败", zap.Int64("id", id), zap.Error(err))
		return false, err
	}

	logger.Info("[Withdrawal] 提现审核完成", zap.Int64("id", id), zap.Bool("approve", approve), zap.String("auditor", auditor))
	return true, nil
}

// ListPending 待审核的提现，按申请顺序
func (s *WithdrawalService) ListPending(ctx context.Context, status string, limit int) ([]*model.Withdrawal, error) {
	if status != model.WithdrawalStatusPendingAuto && status != model.WithdrawalStatusPendingManual {
		return nil, errno.Finance("无效的待审核状态: %s", status)
	}
	return s.repo.ListByStatus(ctx, status, limit)
}
