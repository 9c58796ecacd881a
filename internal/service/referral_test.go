package service

import (
	"testing"

	"mallledger/internal/testutil"
	"mallledger/pkg/errno"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetReferrer(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 1)
	testutil.CreateUser(t, e.db, 2, 1)

	assert.True(t, errno.IsFinance(e.svc.Referrals.SetReferrer(e.ctx, 1, 1)))
	assert.True(t, errno.IsFinance(e.svc.Referrals.SetReferrer(e.ctx, 1, 99)))

	require.NoError(t, e.svc.Referrals.SetReferrer(e.ctx, 2, 1))
	assert.True(t, errno.IsFinance(e.svc.Referrals.SetReferrer(e.ctx, 2, 1)))

	// 新用户绑定时自动建账
	require.NoError(t, e.svc.Referrals.SetReferrer(e.ctx, 3, 2))
	assert.Equal(t, 0, testutil.User(t, e.db, 3).MemberLevel)
}

func TestSetReferrerRejectsCycle(t *testing.T) {
	e := newEnv(t)
	for id := int64(1); id <= 3; id++ {
		testutil.CreateUser(t, e.db, id, 1)
	}
	require.NoError(t, e.svc.Referrals.SetReferrer(e.ctx, 2, 1))
	require.NoError(t, e.svc.Referrals.SetReferrer(e.ctx, 3, 2))

	assert.True(t, errno.IsFinance(e.svc.Referrals.SetReferrer(e.ctx, 1, 3)))
}

func TestGetTeam(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, 1, 6)
	testutil.CreateUser(t, e.db, 2, 3)
	testutil.CreateUser(t, e.db, 3, 2)
	testutil.CreateUser(t, e.db, 4, 1)
	testutil.Link(t, e.db, 2, 1)
	testutil.Link(t, e.db, 3, 1)
	testutil.Link(t, e.db, 4, 2)

	team, err := e.svc.Referrals.GetTeam(e.ctx, nil, 1, 0)
	require.NoError(t, err)
	require.Len(t, team, 3)

	layers := map[int64]int{}
	for _, m := range team {
		layers[m.UserID] = m.Layer
	}
	assert.Equal(t, map[int64]int{2: 1, 3: 1, 4: 2}, layers)

	team, err = e.svc.Referrals.GetTeam(e.ctx, nil, 1, 1)
	require.NoError(t, err)
	assert.Len(t, team, 2)
}

func TestDirectorPromotion(t *testing.T) {
	e := newEnv(t)
	top := e.rules.MaxMemberLevel

	// 用户 1：3 个满级直推，每个再带 3 个满级下级，团队 12 人
	testutil.CreateUser(t, e.db, 1, top)
	next := int64(100)
	for i := int64(0); i < 3; i++ {
		direct := 10 + i
		testutil.CreateUser(t, e.db, direct, top)
		testutil.Link(t, e.db, direct, 1)
		for j := 0; j < 3; j++ {
			testutil.CreateUser(t, e.db, next, top)
			testutil.Link(t, e.db, next, direct)
			next++
		}
	}

	// 用户 2：直推满级人数不够
	testutil.CreateUser(t, e.db, 2, top)
	testutil.CreateUser(t, e.db, 20, top)
	testutil.CreateUser(t, e.db, 21, 1)
	testutil.Link(t, e.db, 20, 2)
	testutil.Link(t, e.db, 21, 2)

	promoted, err := e.svc.Directors.CheckPromotion(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)
	assert.True(t, testutil.User(t, e.db, 1).IsHonorDirector)
	assert.False(t, testutil.User(t, e.db, 2).IsHonorDirector)

	promoted, err = e.svc.Directors.CheckPromotion(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, promoted)
}
