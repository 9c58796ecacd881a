package handler

import (
	"mallledger/internal/job"
	"mallledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, svc *service.Services, scheduler *job.Scheduler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, svc, scheduler)

	api := r.Group("/api/v1")
	{
		order := api.Group("/order")
		{
			order.POST("/create", h.CreateOrder)
			order.GET("/detail", h.GetOrder)
			order.GET("/list", h.ListOrders)
			order.POST("/cancel", h.CancelOrder)
			order.POST("/complete", h.CompleteOrder)
		}

		pay := api.Group("/pay")
		{
			pay.POST("/confirm", h.ConfirmPayment)
			pay.POST("/settle", h.SettleOrder)
		}

		refund := api.Group("/refund")
		{
			refund.POST("/execute", h.RefundOrder)
		}

		user := api.Group("/user")
		{
			user.GET("/balance", h.GetBalance)
			user.POST("/referrer", h.SetReferrer)
			user.GET("/team", h.GetTeam)
			user.GET("/point-logs", h.ListPointLogs)
		}

		withdrawal := api.Group("/withdrawal")
		{
			withdrawal.POST("/apply", h.ApplyWithdrawal)
			withdrawal.POST("/audit", h.AuditWithdrawal)
			withdrawal.GET("/pending", h.ListPendingWithdrawals)
		}

		coupon := api.Group("/coupon")
		{
			coupon.POST("/request", h.RequestCoupon)
			coupon.POST("/audit", h.AuditCoupons)
			coupon.GET("/list", h.ListCoupons)
		}

		admin := api.Group("/admin")
		{
			admin.GET("/allocation", h.GetAllocation)
			admin.POST("/allocation", h.SetAllocation)
			admin.POST("/override", h.AdjustOverride)
			admin.GET("/jobs", h.ListJobs)
			admin.POST("/jobs/trigger", h.TriggerJob)
			admin.GET("/pools", h.ListPools)
			admin.POST("/pools/clear", h.ClearPools)
			admin.GET("/flows", h.ListFlows)
			admin.GET("/outbox/stats", h.OutboxStats)
			admin.GET("/outbox/failed", h.ListFailedOutbox)
			admin.POST("/outbox/requeue", h.RequeueOutbox)
		}
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
