package repository

import (
	"strings"

	"learnsphere_backend/internal/model"

	"gorm.io/gorm"
)

type CertificateRepository struct {
	DB *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{DB: db}
}

func (r *CertificateRepository) FindByUserAndCourse(userID, courseID uint) (*model.Certificate, error) {
	var cert model.Certificate
	err := r.DB.Where("user_id = ? AND course_id = ?", userID, courseID).First(&cert).Error
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *CertificateRepository) ListByUser(userID uint) ([]model.Certificate, error) {
	var certs []model.Certificate
	err := r.DB.Where("user_id = ?", userID).Order("issued_at DESC").Find(&certs).Error
	return certs, err
}

// CreateOrGet 依赖 (user_id, course_id) 唯一索引实现恰好一次：
// 撞到重复键时返回已存在的证书而不是报错
func (r *CertificateRepository) CreateOrGet(cert *model.Certificate) (*model.Certificate, error) {
	err := r.DB.Create(cert).Error
	if err == nil {
		return cert, nil
	}
	if isDuplicateKeyError(err) {
		return r.FindByUserAndCourse(cert.UserID, cert.CourseID)
	}
	return nil, err
}

func isDuplicateKeyError(err error) bool {
	if err == gorm.ErrDuplicatedKey {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}
