package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusPendingPay  = "pending_pay"
	OrderStatusPendingShip = "pending_ship"
	OrderStatusCompleted   = "completed"
	OrderStatusCancelled   = "cancelled"
	OrderStatusRefunded    = "refunded"
)

var ValidStatusTransitions = map[string][]string{
	OrderStatusPendingPay:  {OrderStatusPendingShip, OrderStatusCancelled},
	OrderStatusPendingShip: {OrderStatusCompleted, OrderStatusRefunded},
	OrderStatusCompleted:   {OrderStatusRefunded},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// IsSettled 已结算（含后续履约、退款）的订单
func IsSettled(status string) bool {
	return status == OrderStatusPendingShip || status == OrderStatusCompleted || status == OrderStatusRefunded
}

// Order 商城订单
//
// PointsDiscount/CouponDiscount 下单时记录买家申请的抵扣，结算时按实际扣减回写；
// LevelBefore/LevelAfter 记录结算前后的会员星级，退款时据此回退
type Order struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo        string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	RequestID      *string         `gorm:"type:varchar(64);uniqueIndex" json:"request_id,omitempty"`
	BuyerID        int64           `gorm:"index:idx_buyer_created;not null" json:"buyer_id"`
	MerchantID     int64           `gorm:"index;not null;default:0" json:"merchant_id"`
	Status         string          `gorm:"type:varchar(20);index;not null" json:"status"`
	IsMemberOrder  bool            `gorm:"not null;default:false" json:"is_member_order"`
	OriginalAmount decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"original_amount"`
	PointsDiscount decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"points_discount"`
	CouponDiscount decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"coupon_discount"`
	FinalAmount    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"final_amount"`
	LevelBefore    int             `gorm:"not null;default:0" json:"level_before"`
	LevelAfter     int             `gorm:"not null;default:0" json:"level_after"`
	ExpiredAt      time.Time       `gorm:"not null" json:"expired_at"`
	PaidAt         *time.Time      `json:"paid_at"`
	SettledAt      *time.Time      `gorm:"index" json:"settled_at"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index:idx_buyer_created" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	Items          []OrderItem     `gorm:"foreignKey:OrderID" json:"items"`
}

func (Order) TableName() string {
	return "orders"
}

// PayableAmount 买家应付金额
func (o *Order) PayableAmount() decimal.Decimal {
	payable := o.OriginalAmount.Sub(o.PointsDiscount).Sub(o.CouponDiscount)
	if payable.IsNegative() {
		return decimal.Zero
	}
	return payable
}

type OrderItem struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID       int64           `gorm:"index;not null" json:"order_id"`
	ProductID     string          `gorm:"type:varchar(64);not null" json:"product_id"`
	Quantity      int             `gorm:"not null" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	IsTierProduct bool            `gorm:"not null;default:false" json:"is_tier_product"`
}

func (OrderItem) TableName() string {
	return "order_item"
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
