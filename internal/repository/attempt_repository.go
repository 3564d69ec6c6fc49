package repository

import (
	"learnsphere_backend/internal/model"

	"gorm.io/gorm"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) Create(tx *gorm.DB, attempt *model.QuizAttempt) error {
	return tx.Create(attempt).Error
}

// LatestByModule 返回该模块最近一次作答；从未作答时返回 (nil, nil)
func (r *AttemptRepository) LatestByModule(db *gorm.DB, userID, moduleID uint) (*model.QuizAttempt, error) {
	var attempt model.QuizAttempt
	err := db.
		Where("user_id = ? AND module_id = ?", userID, moduleID).
		Order("attempt_number DESC").
		First(&attempt).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// LatestPerModule 一次取出课程内每个模块的最近作答，供解锁状态投影使用
func (r *AttemptRepository) LatestPerModule(db *gorm.DB, userID, courseID uint) (map[uint]*model.QuizAttempt, error) {
	var attempts []model.QuizAttempt
	err := db.
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Order("attempt_number ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}

	latest := make(map[uint]*model.QuizAttempt)
	for i := range attempts {
		a := attempts[i]
		prev, ok := latest[a.ModuleID]
		if !ok || a.AttemptNumber > prev.AttemptNumber {
			latest[a.ModuleID] = &attempts[i]
		}
	}
	return latest, nil
}

// NextAttemptNumber 在事务内一致读出下一个序号，避免并发提交产生重复序号
func (r *AttemptRepository) NextAttemptNumber(tx *gorm.DB, userID, moduleID uint) (int, error) {
	var max int
	err := tx.Model(&model.QuizAttempt{}).
		Where("user_id = ? AND module_id = ?", userID, moduleID).
		Select("COALESCE(MAX(attempt_number), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (r *AttemptRepository) ListByModule(userID, moduleID uint) ([]model.QuizAttempt, error) {
	var attempts []model.QuizAttempt
	err := r.DB.
		Where("user_id = ? AND module_id = ?", userID, moduleID).
		Order("attempt_number ASC").
		Find(&attempts).Error
	return attempts, err
}
