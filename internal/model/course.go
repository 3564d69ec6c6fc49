package model

import "encoding/json"

// Course 课程定义，由课程创作端维护，本服务只读
type Course struct {
	BaseModel
	Title       string         `gorm:"size:255;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Category    string         `gorm:"size:100;index" json:"category"`
	Published   bool           `gorm:"default:true" json:"published"`
	Modules     []CourseModule `gorm:"foreignKey:CourseID" json:"modules,omitempty"`
}

func (Course) TableName() string {
	return "courses"
}

// CourseModule 课程模块，Order 决定前置链：第 i 个模块是第 i+1 个的前置条件
type CourseModule struct {
	BaseModel
	CourseID     uint           `gorm:"index;type:bigint unsigned;not null" json:"courseId"`
	Title        string         `gorm:"size:255;not null" json:"title"`
	Description  string         `gorm:"type:text" json:"description"`
	Order        int            `gorm:"default:0" json:"order"`
	PassingScore int            `gorm:"default:50" json:"passingScore"` // 百分比，创作端保证 >= 50
	Questions    []QuizQuestion `gorm:"foreignKey:ModuleID" json:"questions,omitempty"`
}

func (CourseModule) TableName() string {
	return "course_modules"
}

type QuizQuestion struct {
	BaseModel
	ModuleID      uint   `gorm:"index;type:bigint unsigned;not null" json:"moduleId"`
	Text          string `gorm:"type:text;not null" json:"text"`
	Options       string `gorm:"type:json" json:"-"`
	CorrectAnswer int    `gorm:"not null" json:"-"` // 选项下标，判分时与选项文本比对
	Points        int    `gorm:"default:1" json:"points"`
	Order         int    `gorm:"default:0" json:"order"`
}

func (QuizQuestion) TableName() string {
	return "quiz_questions"
}

// OptionList 解码 JSON 存储的选项列表
func (q *QuizQuestion) OptionList() []string {
	var opts []string
	if q.Options != "" {
		json.Unmarshal([]byte(q.Options), &opts)
	}
	return opts
}

// CorrectOptionText 返回正确选项的文本；下标越界返回空串
func (q *QuizQuestion) CorrectOptionText() string {
	opts := q.OptionList()
	if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(opts) {
		return ""
	}
	return opts[q.CorrectAnswer]
}

// PointValue 题目分值，未配置时按 1 分计
func (q *QuizQuestion) PointValue() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}
