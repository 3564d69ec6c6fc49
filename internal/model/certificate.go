package model

import "time"

// Certificate 课程结业证书，每个 (用户, 课程) 至多一张；渲染与打印由前端负责
// swagger:model Certificate
type Certificate struct {
	UUIDBase
	UserID       uint      `gorm:"uniqueIndex:idx_cert_user_course;type:bigint unsigned;not null" json:"userId"`
	CourseID     uint      `gorm:"uniqueIndex:idx_cert_user_course;type:bigint unsigned;not null" json:"courseId"`
	SerialNumber string    `gorm:"size:64;uniqueIndex" json:"serialNumber"`
	ModuleCount  int       `gorm:"not null" json:"moduleCount"` // 颁发时的已完成模块数快照
	IssuedAt     time.Time `gorm:"not null" json:"issuedAt"`
}

func (Certificate) TableName() string {
	return "certificates"
}
