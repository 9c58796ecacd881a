package handler

import (
	"errors"
	"net/http"
	"strconv"

	"mallledger/internal/job"
	"mallledger/internal/model"
	"mallledger/internal/repository"
	"mallledger/internal/service"
	"mallledger/pkg/errno"
	"mallledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	svc        *service.Services
	scheduler  *job.Scheduler
	outboxRepo *repository.OutboxRepository
}

func NewHandler(db *gorm.DB, svc *service.Services, scheduler *job.Scheduler) *Handler {
	return &Handler{
		svc:        svc,
		scheduler:  scheduler,
		outboxRepo: repository.NewOutboxRepository(db),
	}
}

func queryInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return v, true
}

// pageParams 读取分页参数，page 从 1 开始，page_size 不超过 100
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return false
	}
	return true
}

// ============================================================
// 订单
// ============================================================

// CreateOrder 创建订单
// POST /api/v1/order/create
func (h *Handler) CreateOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if !bind(c, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.svc.Orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, resp)
}

// GetOrder 查询订单详情
// GET /api/v1/order/detail?order_no=xxx
func (h *Handler) GetOrder(c *gin.Context) {
	orderNo := c.Query("order_no")
	if orderNo == "" {
		response.ParamError(c, "order_no 参数不能为空")
		return
	}

	order, err := h.svc.Orders.GetOrder(c.Request.Context(), orderNo)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, order)
}

// ListOrders 查询买家订单列表
// GET /api/v1/order/list?buyer_id=xxx&page=1&page_size=10
func (h *Handler) ListOrders(c *gin.Context) {
	buyerID, ok := queryInt64(c, "buyer_id")
	if !ok {
		return
	}
	page, pageSize := pageParams(c)

	orders, total, err := h.svc.Orders.ListUserOrders(c.Request.Context(), buyerID, page, pageSize)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

type orderNoRequest struct {
	OrderNo string `json:"order_no" binding:"required"`
}

// CancelOrder 取消未支付订单
// POST /api/v1/order/cancel
func (h *Handler) CancelOrder(c *gin.Context) {
	var req orderNoRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.Orders.CancelOrder(c.Request.Context(), req.OrderNo); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"order_no": req.OrderNo, "status": model.OrderStatusCancelled})
}

// CompleteOrder 确认收货
// POST /api/v1/order/complete
func (h *Handler) CompleteOrder(c *gin.Context) {
	var req orderNoRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.Orders.CompleteOrder(c.Request.Context(), req.OrderNo); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"order_no": req.OrderNo, "status": model.OrderStatusCompleted})
}

// ============================================================
// 支付、结算、退款
// ============================================================

type confirmPaymentRequest struct {
	OrderNo string          `json:"order_no" binding:"required"`
	Amount  decimal.Decimal `json:"amount"`
}

// ConfirmPayment 支付回调，确认金额后结算
// POST /api/v1/pay/confirm
func (h *Handler) ConfirmPayment(c *gin.Context) {
	var req confirmPaymentRequest
	if !bind(c, &req) {
		return
	}
	result, err := h.svc.Settlement.ConfirmPayment(c.Request.Context(), req.OrderNo, req.Amount)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

type settleRequest struct {
	OrderID        int64           `json:"order_id" binding:"required"`
	PointsToUse    decimal.Decimal `json:"points_to_use"`
	CouponDiscount decimal.Decimal `json:"coupon_discount"`
}

// SettleOrder 按指定抵扣直接结算，用于人工补单
// POST /api/v1/pay/settle
func (h *Handler) SettleOrder(c *gin.Context) {
	var req settleRequest
	if !bind(c, &req) {
		return
	}
	result, err := h.svc.Settlement.SettleOrder(c.Request.Context(), req.OrderID, req.PointsToUse, req.CouponDiscount)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// RefundOrder 全额退款，冲回该订单产生的全部流水
// POST /api/v1/refund/execute
func (h *Handler) RefundOrder(c *gin.Context) {
	var req orderNoRequest
	if !bind(c, &req) {
		return
	}
	result, err := h.svc.Refunds.RefundOrder(c.Request.Context(), req.OrderNo)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 用户
// ============================================================

// GetBalance 查询用户各桶余额
// GET /api/v1/user/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	user, err := h.svc.Points.GetUser(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, user)
}

// ListPointLogs 用户积分变动记录
// GET /api/v1/user/point-logs?user_id=xxx&page=1&page_size=10
func (h *Handler) ListPointLogs(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	page, pageSize := pageParams(c)

	logs, total, err := h.svc.Points.ListLogs(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"list": logs, "total": total, "page": page, "page_size": pageSize})
}

type setReferrerRequest struct {
	UserID     int64 `json:"user_id" binding:"required"`
	ReferrerID int64 `json:"referrer_id" binding:"required"`
}

// SetReferrer 绑定推荐人
// POST /api/v1/user/referrer
func (h *Handler) SetReferrer(c *gin.Context) {
	var req setReferrerRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.Referrals.SetReferrer(c.Request.Context(), req.UserID, req.ReferrerID); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, req)
}

// GetTeam 查询下级团队
// GET /api/v1/user/team?user_id=xxx&max_layer=3
func (h *Handler) GetTeam(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	maxLayer, _ := strconv.Atoi(c.DefaultQuery("max_layer", "0"))

	team, err := h.svc.Referrals.GetTeam(c.Request.Context(), nil, userID, maxLayer)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"user_id": userID, "team": team})
}

// ============================================================
// 提现
// ============================================================

type applyWithdrawalRequest struct {
	UserID int64           `json:"user_id" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
	Kind   string          `json:"kind"`
}

// ApplyWithdrawal 申请提现
// POST /api/v1/withdrawal/apply
func (h *Handler) ApplyWithdrawal(c *gin.Context) {
	var req applyWithdrawalRequest
	if !bind(c, &req) {
		return
	}
	if req.Kind == "" {
		req.Kind = model.WithdrawalKindUser
	}
	w, err := h.svc.Withdrawal.ApplyWithdrawal(c.Request.Context(), req.UserID, req.Amount, req.Kind)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, w)
}

// ListPendingWithdrawals 审核队列
// GET /api/v1/withdrawal/pending?status=pending_manual
func (h *Handler) ListPendingWithdrawals(c *gin.Context) {
	status := c.DefaultQuery("status", model.WithdrawalStatusPendingManual)
	list, err := h.svc.Withdrawal.ListPending(c.Request.Context(), status, 100)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, list)
}

type auditRequest struct {
	ID      int64  `json:"id" binding:"required"`
	Approve bool   `json:"approve"`
	Auditor string `json:"auditor" binding:"required"`
}

// AuditWithdrawal 审核提现
// POST /api/v1/withdrawal/audit
func (h *Handler) AuditWithdrawal(c *gin.Context) {
	var req auditRequest
	if !bind(c, &req) {
		return
	}
	changed, err := h.svc.Withdrawal.AuditWithdrawal(c.Request.Context(), req.ID, req.Approve, req.Auditor)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"id": req.ID, "changed": changed})
}

// ============================================================
// 优惠券
// ============================================================

type couponRequest struct {
	UserID int64           `json:"user_id" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
}

// RequestCoupon 用积分申请兑换优惠券，进入待审核
// POST /api/v1/coupon/request
func (h *Handler) RequestCoupon(c *gin.Context) {
	var req couponRequest
	if !bind(c, &req) {
		return
	}
	pending, err := h.svc.Coupons.RequestCoupon(c.Request.Context(), req.UserID, req.Amount)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, pending)
}

type couponAuditRequest struct {
	IDs     []int64 `json:"ids" binding:"required,min=1"`
	Approve bool    `json:"approve"`
	Auditor string  `json:"auditor" binding:"required"`
}

// AuditCoupons 批量审核兑换申请
// POST /api/v1/coupon/audit
func (h *Handler) AuditCoupons(c *gin.Context) {
	var req couponAuditRequest
	if !bind(c, &req) {
		return
	}
	n, err := h.svc.Coupons.AuditPendingRewards(c.Request.Context(), req.IDs, req.Approve, req.Auditor)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"processed": n})
}

// ListCoupons 查询用户优惠券
// GET /api/v1/coupon/list?user_id=xxx
func (h *Handler) ListCoupons(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	coupons, err := h.svc.Coupons.ListCoupons(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, coupons)
}

// ============================================================
// 运维
// ============================================================

// GetAllocation 当前生效的分配比例
// GET /api/v1/admin/allocation
func (h *Handler) GetAllocation(c *gin.Context) {
	alloc, err := h.svc.Allocation.Effective(c.Request.Context(), nil)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, alloc)
}

// SetAllocation 调整子池比例
// POST /api/v1/admin/allocation
func (h *Handler) SetAllocation(c *gin.Context) {
	var req map[model.PoolKind]decimal.Decimal
	if !bind(c, &req) {
		return
	}
	alloc, err := h.svc.Allocation.SetAllocation(c.Request.Context(), req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, alloc)
}

type overrideRequest struct {
	Job       string           `json:"job" binding:"required"`
	Value     *decimal.Decimal `json:"value"`
	AutoClear *bool            `json:"auto_clear"`
	Operator  string           `json:"operator" binding:"required"`
}

// AdjustOverride 设置或清除周补贴、月分红的人工干预值
// POST /api/v1/admin/override
func (h *Handler) AdjustOverride(c *gin.Context) {
	var req overrideRequest
	if !bind(c, &req) {
		return
	}
	o, err := h.svc.Overrides.AdjustManualOverride(c.Request.Context(), req.Job, req.Value, req.AutoClear, req.Operator)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, o)
}

// ListJobs 已注册的定时任务
// GET /api/v1/admin/jobs
func (h *Handler) ListJobs(c *gin.Context) {
	response.Success(c, h.scheduler.Jobs())
}

type triggerRequest struct {
	Job   string `json:"job" binding:"required"`
	Force bool   `json:"force"`
}

// TriggerJob 手动触发定时任务，force 时忽略本周期已执行的记录
// POST /api/v1/admin/jobs/trigger
func (h *Handler) TriggerJob(c *gin.Context) {
	var req triggerRequest
	if !bind(c, &req) {
		return
	}
	result, err := h.scheduler.Trigger(c.Request.Context(), req.Job, req.Force)
	switch {
	case errors.Is(err, job.ErrUnknownJob):
		response.Error(c, http.StatusNotFound, errno.CodeNotFound, err.Error())
	case errors.Is(err, job.ErrJobBusy):
		response.Error(c, http.StatusTooManyRequests, errno.CodeRetryLater, err.Error())
	case errors.Is(err, repository.ErrJobPeriodDone):
		response.Error(c, http.StatusConflict, errno.CodeConcurrentUpdate, err.Error())
	case err != nil:
		response.Fail(c, err)
	default:
		response.Success(c, result)
	}
}

// ListPools 资金池余额
// GET /api/v1/admin/pools
func (h *Handler) ListPools(c *gin.Context) {
	pools, err := h.svc.Pools.ListPools(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, pools)
}

// ListFlows 按账户查询流水
// GET /api/v1/admin/flows?account=subsidy_pool&page=1&page_size=10
func (h *Handler) ListFlows(c *gin.Context) {
	account := c.Query("account")
	if account == "" {
		response.ParamError(c, "account 参数不能为空")
		return
	}
	page, pageSize := pageParams(c)

	flows, total, err := h.svc.Ledger.ListFlows(c.Request.Context(), account, page, pageSize)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"list": flows, "total": total, "page": page, "page_size": pageSize})
}

type clearPoolsRequest struct {
	Pools    []model.PoolKind `json:"pools" binding:"required,min=1"`
	Operator string           `json:"operator" binding:"required"`
}

// ClearPools 清空指定资金池，余额转入公司积分池
// POST /api/v1/admin/pools/clear
func (h *Handler) ClearPools(c *gin.Context) {
	var req clearPoolsRequest
	if !bind(c, &req) {
		return
	}
	result, err := h.svc.Pools.ClearPools(c.Request.Context(), req.Pools, req.Operator)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// OutboxStats 各状态的待投递消息数
// GET /api/v1/admin/outbox/stats
func (h *Handler) OutboxStats(c *gin.Context) {
	counts, err := h.outboxRepo.CountByStatus(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, counts)
}

// ListFailedOutbox 投递失败的消息
// GET /api/v1/admin/outbox/failed
func (h *Handler) ListFailedOutbox(c *gin.Context) {
	messages, err := h.outboxRepo.GetFailedMessages(c.Request.Context(), 100)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, messages)
}

type requeueRequest struct {
	IDs []int64 `json:"ids"`
}

// RequeueOutbox 把投递失败的消息重新放回队列，ids 为空时处理全部
// POST /api/v1/admin/outbox/requeue
func (h *Handler) RequeueOutbox(c *gin.Context) {
	var req requeueRequest
	if !bind(c, &req) {
		return
	}
	n, err := h.outboxRepo.Requeue(c.Request.Context(), req.IDs)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"requeued": n})
}
