package service

import (
	"fmt"
	"strings"
	"time"

	"learnsphere_backend/internal/model"
	"learnsphere_backend/internal/repository"
	"learnsphere_backend/internal/util"
	"learnsphere_backend/pkg/monitoring"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CertificateService 课程结业证书的颁发与查询；证书的渲染和打印由前端负责
type CertificateService struct {
	CertRepo     *repository.CertificateRepository
	ProgressRepo *repository.ProgressRepository
}

func NewCertificateService(certRepo *repository.CertificateRepository, progressRepo *repository.ProgressRepository) *CertificateService {
	return &CertificateService{CertRepo: certRepo, ProgressRepo: progressRepo}
}

// Issue 为已完成课程颁发证书，每个 (学习者, 课程) 恰好一张：
// 重复调用返回已存在的证书
func (s *CertificateService) Issue(userID, courseID uint, completedAt time.Time, completedModuleIDs []uint) (*model.Certificate, error) {
	cert := &model.Certificate{
		UserID:       userID,
		CourseID:     courseID,
		SerialNumber: newSerialNumber(courseID),
		ModuleCount:  len(completedModuleIDs),
		IssuedAt:     completedAt,
	}

	issued, err := s.CertRepo.CreateOrGet(cert)
	if err != nil {
		return nil, err
	}
	if issued.SerialNumber == cert.SerialNumber {
		monitoring.CertificatesIssued.Inc()
	}
	return issued, nil
}

func (s *CertificateService) ListForUser(userID uint) ([]model.Certificate, error) {
	return s.CertRepo.ListByUser(userID)
}

// GetForCourse 查询某课程的证书；课程已完成但证书缺失时补发
// （颁发方在落库后、发证前崩溃的修复路径）
func (s *CertificateService) GetForCourse(userID, courseID uint) (*model.Certificate, error) {
	cert, err := s.CertRepo.FindByUserAndCourse(userID, courseID)
	if err == nil {
		return cert, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	progress, err := s.ProgressRepo.Find(userID, courseID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrCourseNotCompleted
		}
		return nil, err
	}
	if progress.CompletedAt == nil {
		return nil, util.ErrCourseNotCompleted
	}

	completions, err := s.ProgressRepo.ListCompletions(s.ProgressRepo.DB, userID, courseID)
	if err != nil {
		return nil, err
	}
	moduleIDs := make([]uint, 0, len(completions))
	for _, c := range completions {
		moduleIDs = append(moduleIDs, c.ModuleID)
	}

	return s.Issue(userID, courseID, *progress.CompletedAt, moduleIDs)
}

func newSerialNumber(courseID uint) string {
	token := strings.ToUpper(strings.SplitN(uuid.New().String(), "-", 2)[0])
	return fmt.Sprintf("LS-%d-%s", courseID, token)
}
