package database

import (
	"encoding/json"
	"fmt"
	"log"

	"learnsphere_backend/internal/config"
	"learnsphere_backend/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	return db, nil
}

// Migrate 建表并在课程表为空时写入演示课程；
// 正式的课程数据由创作端维护，演示数据只为本地联调
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Course{},
		&model.CourseModule{},
		&model.QuizQuestion{},
		&model.CourseProgress{},
		&model.ModuleCompletion{},
		&model.QuizAttempt{},
		&model.Certificate{},
	)
	if err != nil {
		return err
	}

	var count int64
	db.Model(&model.Course{}).Count(&count)
	if count == 0 {
		seedDemoCourse(db)
	}

	return nil
}

func seedDemoCourse(db *gorm.DB) {
	course := &model.Course{
		Title:       "Go 语言入门",
		Description: "从零开始的 Go 基础课程，逐模块解锁，通过测验推进",
		Category:    "programming",
		Published:   true,
	}
	if err := db.Create(course).Error; err != nil {
		return
	}

	modules := []struct {
		title     string
		passing   int
		questions []struct {
			text    string
			options []string
			answer  int
			points  int
		}
	}{
		{
			title:   "变量与类型",
			passing: 50,
			questions: []struct {
				text    string
				options []string
				answer  int
				points  int
			}{
				{"哪个关键字用于声明变量？", []string{"let", "var", "def", "dim"}, 1, 1},
				{"Go 的字符串是否可变？", []string{"可变", "不可变"}, 1, 1},
			},
		},
		{
			title:   "流程控制",
			passing: 60,
			questions: []struct {
				text    string
				options []string
				answer  int
				points  int
			}{
				{"Go 中唯一的循环关键字是？", []string{"while", "loop", "for", "each"}, 2, 1},
				{"switch 分支默认是否贯穿？", []string{"是", "否"}, 1, 1},
			},
		},
	}

	for i, m := range modules {
		module := &model.CourseModule{
			CourseID:     course.ID,
			Title:        m.title,
			Order:        i,
			PassingScore: m.passing,
		}
		if err := db.Create(module).Error; err != nil {
			continue
		}
		for j, q := range m.questions {
			opts, _ := json.Marshal(q.options)
			db.Create(&model.QuizQuestion{
				ModuleID:      module.ID,
				Text:          q.text,
				Options:       string(opts),
				CorrectAnswer: q.answer,
				Points:        q.points,
				Order:         j,
			})
		}
	}
}
