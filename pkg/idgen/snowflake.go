package idgen

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// 雪花算法：1 位符号 + 41 位毫秒时间戳 + 10 位机器 ID + 12 位序列号
const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// 单号前缀
const (
	PrefixOrder      = "ORD"
	PrefixWithdrawal = "WD"
	PrefixCoupon     = "CP"
	PrefixJobRun     = "RUN"
)

type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

// NewSnowflake workerID 超出范围时返回错误
func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间", maxWorkerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

// Init 初始化默认生成器，只有第一次调用生效
func Init(workerID int64) error {
	var err error
	once.Do(func() {
		defaultGenerator, err = NewSnowflake(workerID)
	})
	return err
}

func NextID() int64 {
	if defaultGenerator == nil {
		_ = Init(1)
	}
	return defaultGenerator.Generate()
}

func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < s.timestamp {
		// 时钟回拨时沿用上一次的时间戳
		now = s.timestamp
	}

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// Generate 带前缀的业务单号，例如 ORD20240115143052-1234567890123456
func Generate(prefix string) string {
	return fmt.Sprintf("%s%s-%d", prefix, time.Now().Format("20060102150405"), NextID())
}

func GenerateOrderNo() string {
	return Generate(PrefixOrder)
}

func GenerateWithdrawalNo() string {
	return Generate(PrefixWithdrawal)
}

func GenerateCouponNo() string {
	return Generate(PrefixCoupon)
}

func GenerateRunNo() string {
	return Generate(PrefixJobRun)
}

// GenerateFlowNo 流水号量大且不需要可读性，直接用 UUID
func GenerateFlowNo() string {
	return uuid.NewString()
}
