package repository

import (
	"time"

	"learnsphere_backend/internal/model"
	"learnsphere_backend/internal/util"

	"gorm.io/gorm"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

// GetOrCreate 惰性创建进度记录：首次查询可用性或首次提交时才落库
func (r *ProgressRepository) GetOrCreate(db *gorm.DB, userID, courseID uint) (*model.CourseProgress, error) {
	var progress model.CourseProgress
	err := db.
		Where(model.CourseProgress{UserID: userID, CourseID: courseID}).
		FirstOrCreate(&progress).Error
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

func (r *ProgressRepository) Find(userID, courseID uint) (*model.CourseProgress, error) {
	var progress model.CourseProgress
	err := r.DB.Where("user_id = ? AND course_id = ?", userID, courseID).First(&progress).Error
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

func (r *ProgressRepository) ListCompletions(db *gorm.DB, userID, courseID uint) ([]model.ModuleCompletion, error) {
	var completions []model.ModuleCompletion
	err := db.
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Order("completed_at ASC").
		Find(&completions).Error
	return completions, err
}

// CompletionSet 把已完成模块行折叠成 moduleID -> 完成时间 的集合视图
func (r *ProgressRepository) CompletionSet(db *gorm.DB, userID, courseID uint) (map[uint]time.Time, error) {
	completions, err := r.ListCompletions(db, userID, courseID)
	if err != nil {
		return nil, err
	}
	set := make(map[uint]time.Time, len(completions))
	for _, c := range completions {
		set[c.ModuleID] = c.CompletedAt
	}
	return set, nil
}

// AddCompletion 追加已完成模块；唯一索引 + FirstOrCreate 保证重复提交不产生第二行
func (r *ProgressRepository) AddCompletion(tx *gorm.DB, userID, courseID, moduleID uint, completedAt time.Time) error {
	var completion model.ModuleCompletion
	return tx.
		Where(model.ModuleCompletion{UserID: userID, ModuleID: moduleID}).
		Attrs(model.ModuleCompletion{CourseID: courseID, CompletedAt: completedAt}).
		FirstOrCreate(&completion).Error
}

// SaveWithVersion 按版本号条件更新进度记录，版本不匹配时返回 ErrConcurrentModification
func (r *ProgressRepository) SaveWithVersion(tx *gorm.DB, progress *model.CourseProgress) error {
	res := tx.Model(&model.CourseProgress{}).
		Where("id = ? AND version = ?", progress.ID, progress.Version).
		Updates(map[string]interface{}{
			"last_module_id": progress.LastModuleID,
			"version":        progress.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrConcurrentModification
	}
	progress.Version++
	return nil
}

// MarkCourseCompleted 设置课程完成时间，只有首个写入者成功；返回值指示本次调用是否是赢家
func (r *ProgressRepository) MarkCourseCompleted(tx *gorm.DB, progressID uint, completedAt time.Time) (bool, error) {
	res := tx.Model(&model.CourseProgress{}).
		Where("id = ? AND completed_at IS NULL", progressID).
		Update("completed_at", completedAt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
