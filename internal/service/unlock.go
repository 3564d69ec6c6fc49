package service

import (
	"time"

	"learnsphere_backend/internal/model"
)

// QuizRetryCooldown 测验失败后的强制等待时长
const QuizRetryCooldown = 24 * time.Hour

// CooldownRemaining 剩余冷却时间，向下取整到小时和分钟
type CooldownRemaining struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

type ModuleUnlockStatus struct {
	ModuleID    uint               `json:"moduleId"`
	Title       string             `json:"title"`
	Order       int                `json:"order"`
	IsUnlocked  bool               `json:"isUnlocked"`
	IsCompleted bool               `json:"isCompleted"`
	CanTakeQuiz bool               `json:"canTakeQuiz"`
	Cooldown    *CooldownRemaining `json:"cooldown,omitempty"`
}

// RemainingCooldown 计算某模块最近一次作答带来的剩余冷却；
// 无作答、作答通过或冷却已过期时返回 nil
func RemainingCooldown(latest *model.QuizAttempt, now time.Time) *CooldownRemaining {
	if latest == nil || latest.Passed {
		return nil
	}
	expiry := latest.AttemptedAt.Add(QuizRetryCooldown)
	if !now.Before(expiry) {
		return nil
	}
	remaining := expiry.Sub(now)
	return &CooldownRemaining{
		Hours:   int(remaining / time.Hour),
		Minutes: int((remaining % time.Hour) / time.Minute),
	}
}

// ResolveUnlockStatus 把课程定义、已完成模块集合和各模块最近作答
// 投影成逐模块的解锁状态。纯函数：相同输入永远得到相同输出，
// 不读写任何存储，前端刷新时可以安全地反复调用。
//
// 规则（modules 必须已按 Order 排序）：
//   - 第 0 个模块永远解锁；
//   - 第 i 个模块解锁当且仅当第 i-1 个模块已完成；
//   - 已完成的模块不允许再次作答，完成即终态；
//   - 未完成且已解锁的模块能否作答由冷却决定。
//
// 锁定与冷却是相互独立的拒绝理由：锁定的模块也会照常上报冷却，
// 调用方区分「锁定」与「冷却中」时各看各的字段。
func ResolveUnlockStatus(modules []model.CourseModule, completed map[uint]time.Time, latestAttempts map[uint]*model.QuizAttempt, now time.Time) []ModuleUnlockStatus {
	statuses := make([]ModuleUnlockStatus, len(modules))

	for i, m := range modules {
		_, isCompleted := completed[m.ID]

		isUnlocked := i == 0
		if i > 0 {
			_, prevDone := completed[modules[i-1].ID]
			isUnlocked = prevDone
		}

		cooldown := RemainingCooldown(latestAttempts[m.ID], now)

		statuses[i] = ModuleUnlockStatus{
			ModuleID:    m.ID,
			Title:       m.Title,
			Order:       m.Order,
			IsUnlocked:  isUnlocked,
			IsCompleted: isCompleted,
			CanTakeQuiz: isUnlocked && !isCompleted && cooldown == nil,
			Cooldown:    cooldown,
		}
	}

	return statuses
}
