package model

import "time"

// QuizAttempt 测验作答记录，写入后不可变；重试永远产生新记录而不是修改旧记录
// swagger:model QuizAttempt
type QuizAttempt struct {
	BaseModel
	UserID        uint      `gorm:"uniqueIndex:idx_attempt_user_module_no;index;type:bigint unsigned;not null" json:"userId"`
	CourseID      uint      `gorm:"index;type:bigint unsigned;not null" json:"courseId"`
	ModuleID      uint      `gorm:"uniqueIndex:idx_attempt_user_module_no;type:bigint unsigned;not null" json:"moduleId"`
	AttemptNumber int       `gorm:"uniqueIndex:idx_attempt_user_module_no;not null" json:"attemptNumber"` // 从 1 开始单调递增
	Score         int       `gorm:"not null" json:"score"`
	TotalPoints   int       `gorm:"not null" json:"totalPoints"`
	Percentage    int       `gorm:"not null" json:"percentage"`
	Passed        bool      `gorm:"default:false" json:"passed"`
	AttemptedAt   time.Time `gorm:"not null" json:"attemptedAt"` // 失败后冷却期的起点
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}
