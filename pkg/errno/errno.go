package errno

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// 业务错误码
const (
	CodeOK                  = 0
	CodeParamError          = 400
	CodeServerError         = 500
	CodeInsufficientBalance = 2001
	CodeFinanceError        = 2002
	CodeOrderError          = 2003
	CodeRetryLater          = 2004
	CodeConcurrentUpdate    = 2005
	CodeNotFound            = 2006
)

var (
	// ErrRetryLater 下单锁被占用，调用方稍后重试
	ErrRetryLater = errors.New("操作过于频繁，请稍后重试")
	// ErrConcurrentUpdate 条件更新未命中且余额充足，说明发生并发冲突
	ErrConcurrentUpdate = errors.New("并发更新冲突，请重试")
	// ErrNotFound 资源不存在
	ErrNotFound = errors.New("记录不存在")
)

// InsufficientBalanceError 资金池或用户余额不足
type InsufficientBalanceError struct {
	Scope     string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("余额不足: %s 需要 %s, 可用 %s", e.Scope, e.Required.String(), e.Available.String())
}

func InsufficientBalance(scope string, required, available decimal.Decimal) error {
	return &InsufficientBalanceError{Scope: scope, Required: required, Available: available}
}

// FinanceError 财务规则违规，如分配比例非法、审核参数错误
type FinanceError struct {
	Message string
}

func (e *FinanceError) Error() string {
	return e.Message
}

func Finance(format string, args ...interface{}) error {
	return &FinanceError{Message: fmt.Sprintf(format, args...)}
}

// OrderError 订单状态或抵扣金额违规
type OrderError struct {
	Message string
}

func (e *OrderError) Error() string {
	return e.Message
}

func Order(format string, args ...interface{}) error {
	return &OrderError{Message: fmt.Sprintf(format, args...)}
}

func IsInsufficientBalance(err error) bool {
	var target *InsufficientBalanceError
	return errors.As(err, &target)
}

func IsFinance(err error) bool {
	var target *FinanceError
	return errors.As(err, &target)
}

func IsOrder(err error) bool {
	var target *OrderError
	return errors.As(err, &target)
}

// Decode 把错误转换为 HTTP 状态码、业务码和提示信息
func Decode(err error) (int, int, string) {
	if err == nil {
		return http.StatusOK, CodeOK, "success"
	}

	var (
		insufficient *InsufficientBalanceError
		finance      *FinanceError
		order        *OrderError
	)
	switch {
	case errors.As(err, &insufficient):
		return http.StatusUnprocessableEntity, CodeInsufficientBalance, insufficient.Error()
	case errors.As(err, &finance):
		return http.StatusBadRequest, CodeFinanceError, finance.Message
	case errors.As(err, &order):
		return http.StatusBadRequest, CodeOrderError, order.Message
	case errors.Is(err, ErrRetryLater):
		return http.StatusTooManyRequests, CodeRetryLater, ErrRetryLater.Error()
	case errors.Is(err, ErrConcurrentUpdate):
		return http.StatusConflict, CodeConcurrentUpdate, ErrConcurrentUpdate.Error()
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, CodeNotFound, err.Error()
	default:
		return http.StatusInternalServerError, CodeServerError, err.Error()
	}
}
