package repository

import (
	"learnsphere_backend/internal/model"

	"gorm.io/gorm"
)

type CourseRepository struct {
	DB *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: db}
}

// FindWithModules 按模块顺序加载课程定义（含题目），这是进度引擎消费的唯一课程视图
func (r *CourseRepository) FindWithModules(courseID uint) (*model.Course, error) {
	var course model.Course
	err := r.DB.
		Preload("Modules", func(db *gorm.DB) *gorm.DB {
			return db.Order("course_modules.`order` ASC, course_modules.id ASC")
		}).
		Preload("Modules.Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("quiz_questions.`order` ASC, quiz_questions.id ASC")
		}).
		First(&course, courseID).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *CourseRepository) List(category, keyword string) ([]model.Course, error) {
	var courses []model.Course
	db := r.DB.Where("published = ?", true)

	if category != "" {
		db = db.Where("category = ?", category)
	}
	if keyword != "" {
		db = db.Where("title LIKE ?", "%"+keyword+"%")
	}

	err := db.Order("created_at DESC").Find(&courses).Error
	return courses, err
}

func (r *CourseRepository) CountModules(courseID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.CourseModule{}).Where("course_id = ?", courseID).Count(&count).Error
	return count, err
}
