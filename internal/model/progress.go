package model

import "time"

// CourseProgress 每个 (用户, 课程) 一条，首次交互时惰性创建，本服务不删除
type CourseProgress struct {
	BaseModel
	UserID       uint       `gorm:"uniqueIndex:idx_progress_user_course;type:bigint unsigned;not null" json:"userId"`
	CourseID     uint       `gorm:"uniqueIndex:idx_progress_user_course;type:bigint unsigned;not null" json:"courseId"`
	LastModuleID *uint      `gorm:"type:bigint unsigned" json:"lastModuleId,omitempty"` // 仅供前端展示
	CompletedAt  *time.Time `json:"completedAt,omitempty"`                              // 课程完成时间，只写一次
	Version      int        `gorm:"default:0" json:"-"`                                 // 乐观锁版本号
}

func (CourseProgress) TableName() string {
	return "course_progress"
}

// ModuleCompletion 已完成模块集合，只增不删；唯一索引保证重复提交幂等
type ModuleCompletion struct {
	BaseModel
	UserID      uint      `gorm:"uniqueIndex:idx_completion_user_module;index:idx_completion_user_course;type:bigint unsigned;not null" json:"userId"`
	CourseID    uint      `gorm:"index:idx_completion_user_course;type:bigint unsigned;not null" json:"courseId"`
	ModuleID    uint      `gorm:"uniqueIndex:idx_completion_user_module;type:bigint unsigned;not null" json:"moduleId"`
	CompletedAt time.Time `gorm:"not null" json:"completedAt"`
}

func (ModuleCompletion) TableName() string {
	return "module_completions"
}
