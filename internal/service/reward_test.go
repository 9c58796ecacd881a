package service

import (
	"testing"

	"mallledger/internal/model"
	"mallledger/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstUpgradePaysReferralOnly(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 20, 0)
	testutil.CreateUser(t, e.db, 21, 3)
	testutil.CreateUser(t, e.db, 22, 6)
	testutil.Link(t, e.db, 20, 21)
	testutil.Link(t, e.db, 21, 22)
	order := placeOrder(t, e, 20, 0, tierItem("1000", 2))

	res := settle(t, e, order, "0", "0")
	assert.Equal(t, 2, res.LevelAfter)
	require.Len(t, res.Payouts, 1)
	assert.Equal(t, RewardKindReferral, res.Payouts[0].Kind)
	assert.Equal(t, int64(21), res.Payouts[0].UserID)
	testutil.Money(t, "500", res.Payouts[0].Amount)

	referrer := testutil.User(t, e.db, 21)
	testutil.Money(t, "500", referrer.ReferralPoints)
	testutil.Money(t, "500", referrer.TrueTotalPoints)
	testutil.Money(t, "0", referrer.TeamRewardPoints)
	testutil.Money(t, "0", testutil.User(t, e.db, 22).TeamRewardPoints)

	buyer := testutil.User(t, e.db, 20)
	testutil.Money(t, "2000", buyer.MemberPoints)
}

func TestFirstUpgradeFallsBackToTeamWhenReferrerUnranked(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 30, 0)
	testutil.CreateUser(t, e.db, 31, 0)
	testutil.CreateUser(t, e.db, 32, 6)
	testutil.Link(t, e.db, 30, 31)
	testutil.Link(t, e.db, 31, 32)
	order := placeOrder(t, e, 30, 0, tierItem("1000", 1))

	res := settle(t, e, order, "0", "0")
	require.Len(t, res.Payouts, 1)
	p := res.Payouts[0]
	assert.Equal(t, RewardKindTeam, p.Kind)
	assert.Equal(t, int64(32), p.UserID)
	assert.Equal(t, 1, p.TargetLayer)
	assert.Equal(t, 2, p.ActualLayer)
	testutil.Money(t, "0", testutil.User(t, e.db, 31).ReferralPoints)
	testutil.Money(t, "500", testutil.User(t, e.db, 32).TeamRewardPoints)
}

func TestTeamRewardRequiresLayerAndLevel(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 10, 1)
	testutil.CreateUser(t, e.db, 11, 1)
	testutil.CreateUser(t, e.db, 12, 1)
	testutil.CreateUser(t, e.db, 13, 2)
	testutil.Link(t, e.db, 10, 11)
	testutil.Link(t, e.db, 11, 12)
	testutil.Link(t, e.db, 12, 13)
	order := placeOrder(t, e, 10, 0, tierItem("1000", 1))

	res := settle(t, e, order, "0", "0")
	require.Len(t, res.Payouts, 1)
	p := res.Payouts[0]
	assert.Equal(t, int64(13), p.UserID)
	assert.Equal(t, 2, p.TargetLayer)
	assert.Equal(t, 3, p.ActualLayer)

	for _, id := range []int64{11, 12} {
		testutil.Money(t, "0", testutil.User(t, e.db, id).TeamRewardPoints)
	}
	upline := testutil.User(t, e.db, 13)
	testutil.Money(t, "500", upline.TeamRewardPoints)
	testutil.Money(t, "500", upline.TrueTotalPoints)

	var flow model.Flow
	require.NoError(t, e.db.Where("order_no = ? AND account_type = ?", order.OrderNo, model.BucketTeamRewardPoints).First(&flow).Error)
	assert.Contains(t, flow.Remark, "目标第2层")
	assert.Contains(t, flow.Remark, "实际第3层")
}

func TestTeamRewardOnePayoutPerNewLevel(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 10, 1)
	testutil.CreateUser(t, e.db, 11, 6)
	testutil.CreateUser(t, e.db, 12, 6)
	testutil.CreateUser(t, e.db, 13, 6)
	testutil.Link(t, e.db, 10, 11)
	testutil.Link(t, e.db, 11, 12)
	testutil.Link(t, e.db, 12, 13)
	order := placeOrder(t, e, 10, 0, tierItem("1000", 2))

	res := settle(t, e, order, "0", "0")
	require.Len(t, res.Payouts, 2)
	assert.Equal(t, int64(12), res.Payouts[0].UserID)
	assert.Equal(t, int64(13), res.Payouts[1].UserID)
	testutil.Money(t, "0", testutil.User(t, e.db, 11).TeamRewardPoints)
}

func TestTeamRewardStopsOnReferralCycle(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 10, 1)
	testutil.CreateUser(t, e.db, 11, 1)
	testutil.CreateUser(t, e.db, 12, 1)
	testutil.Link(t, e.db, 10, 11)
	testutil.Link(t, e.db, 11, 12)
	testutil.Link(t, e.db, 12, 11)
	order := placeOrder(t, e, 10, 0, tierItem("1000", 1))

	res := settle(t, e, order, "0", "0")
	assert.Empty(t, res.Payouts)
	assert.Equal(t, 2, testutil.User(t, e.db, 10).MemberLevel)
}

func TestNoRewardWithoutUpgrade(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 10, 6)
	testutil.CreateUser(t, e.db, 11, 6)
	testutil.Link(t, e.db, 10, 11)
	order := placeOrder(t, e, 10, 0, tierItem("1000", 1))

	res := settle(t, e, order, "0", "0")
	assert.Empty(t, res.Payouts)
	assert.Zero(t, countFlows(t, e, "account_type = ?", model.BucketTeamRewardPoints))
}

func TestTeamRewardStrictLayerChain(t *testing.T) {
	tests := []struct {
		name        string
		levels      [3]int // A B C
		wantUser    int64
		wantActual  int
		unpaidUsers []int64
	}{
		{"A一星在第1层 B三星在第2层 奖励给B", [3]int{1, 3, 3}, 21, 2, []int64{20, 22}},
		{"B星级不足时越过B给C", [3]int{1, 1, 3}, 22, 3, []int64{20, 21}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			testutil.CreateUser(t, e.db, 1, 1)
			ids := []int64{20, 21, 22}
			for i, id := range ids {
				testutil.CreateUser(t, e.db, id, tt.levels[i])
			}
			testutil.Link(t, e.db, 1, 20)
			testutil.Link(t, e.db, 20, 21)
			testutil.Link(t, e.db, 21, 22)
			order := placeOrder(t, e, 1, 0, tierItem("1000", 1))

			res := settle(t, e, order, "0", "0")
			require.Len(t, res.Payouts, 1)
			p := res.Payouts[0]
			assert.Equal(t, RewardKindTeam, p.Kind)
			assert.Equal(t, tt.wantUser, p.UserID)
			assert.Equal(t, 2, p.TargetLayer)
			assert.Equal(t, tt.wantActual, p.ActualLayer)

			testutil.Money(t, "500", testutil.User(t, e.db, tt.wantUser).TeamRewardPoints)
			for _, id := range tt.unpaidUsers {
				testutil.Money(t, "0", testutil.User(t, e.db, id).TeamRewardPoints)
			}
		})
	}
}
