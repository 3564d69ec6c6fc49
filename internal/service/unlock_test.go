package service

import (
	"testing"
	"time"

	"learnsphere_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModules(n int) []model.CourseModule {
	modules := make([]model.CourseModule, n)
	for i := range modules {
		modules[i] = model.CourseModule{
			BaseModel: model.BaseModel{ID: uint(i + 1)},
			CourseID:  1,
			Title:     "module",
			Order:     i,
		}
	}
	return modules
}

func TestResolveUnlockStatus_FirstModuleAlwaysUnlocked(t *testing.T) {
	now := time.Now()
	modules := testModules(4)

	// 无论完成集合长什么样，第 0 个模块都解锁
	for _, completed := range []map[uint]time.Time{
		{},
		{2: now},
		{3: now, 4: now},
	} {
		statuses := ResolveUnlockStatus(modules, completed, nil, now)
		require.Len(t, statuses, 4)
		assert.True(t, statuses[0].IsUnlocked)
	}
}

func TestResolveUnlockStatus_ChainRule(t *testing.T) {
	now := time.Now()
	modules := testModules(4)

	completed := map[uint]time.Time{1: now, 2: now}
	statuses := ResolveUnlockStatus(modules, completed, nil, now)

	assert.True(t, statuses[0].IsCompleted)
	assert.True(t, statuses[1].IsCompleted)
	assert.True(t, statuses[1].IsUnlocked)
	assert.True(t, statuses[2].IsUnlocked, "module 2 unlocks because module 1 is completed")
	assert.False(t, statuses[2].IsCompleted)
	assert.False(t, statuses[3].IsUnlocked, "module 3 stays locked until module 2 completes")
	assert.False(t, statuses[3].CanTakeQuiz)
}

func TestResolveUnlockStatus_CompletedNeverRetakeable(t *testing.T) {
	now := time.Now()
	modules := testModules(2)

	completed := map[uint]time.Time{1: now}
	statuses := ResolveUnlockStatus(modules, completed, nil, now)

	assert.True(t, statuses[0].IsCompleted)
	assert.False(t, statuses[0].CanTakeQuiz, "completion is terminal")
	assert.True(t, statuses[1].CanTakeQuiz)
}

func TestResolveUnlockStatus_Deterministic(t *testing.T) {
	now := time.Now()
	modules := testModules(3)
	completed := map[uint]time.Time{1: now}
	latest := map[uint]*model.QuizAttempt{
		2: {UserID: 7, ModuleID: 2, AttemptNumber: 1, Passed: false, AttemptedAt: now.Add(-time.Hour)},
	}

	first := ResolveUnlockStatus(modules, completed, latest, now)
	second := ResolveUnlockStatus(modules, completed, latest, now)
	assert.Equal(t, first, second)
}

func TestResolveUnlockStatus_CooldownBlocksQuiz(t *testing.T) {
	now := time.Now()
	modules := testModules(2)
	completed := map[uint]time.Time{1: now}
	latest := map[uint]*model.QuizAttempt{
		2: {ModuleID: 2, AttemptNumber: 1, Passed: false, AttemptedAt: now.Add(-time.Hour)},
	}

	statuses := ResolveUnlockStatus(modules, completed, latest, now)
	assert.True(t, statuses[1].IsUnlocked)
	assert.False(t, statuses[1].CanTakeQuiz)
	require.NotNil(t, statuses[1].Cooldown)
	assert.Equal(t, 23, statuses[1].Cooldown.Hours)
	assert.Equal(t, 0, statuses[1].Cooldown.Minutes)
}

func TestRemainingCooldown_Boundaries(t *testing.T) {
	attemptedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	attempt := &model.QuizAttempt{Passed: false, AttemptedAt: attemptedAt}

	// T+23h59m：还剩 1 分钟
	cooldown := RemainingCooldown(attempt, attemptedAt.Add(23*time.Hour+59*time.Minute))
	require.NotNil(t, cooldown)
	assert.Equal(t, 0, cooldown.Hours)
	assert.Equal(t, 1, cooldown.Minutes)

	// 恰好 T+24h：冷却结束
	assert.Nil(t, RemainingCooldown(attempt, attemptedAt.Add(QuizRetryCooldown)))

	// 剩余 90 分钟渲染为 1 小时 30 分
	cooldown = RemainingCooldown(attempt, attemptedAt.Add(QuizRetryCooldown-90*time.Minute))
	require.NotNil(t, cooldown)
	assert.Equal(t, 1, cooldown.Hours)
	assert.Equal(t, 30, cooldown.Minutes)
}

func TestRemainingCooldown_NoAttemptOrPassed(t *testing.T) {
	now := time.Now()
	assert.Nil(t, RemainingCooldown(nil, now))
	assert.Nil(t, RemainingCooldown(&model.QuizAttempt{Passed: true, AttemptedAt: now}, now))
}
