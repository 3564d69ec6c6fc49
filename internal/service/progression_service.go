package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"learnsphere_backend/internal/model"
	"learnsphere_backend/internal/repository"
	"learnsphere_backend/internal/util"
	"learnsphere_backend/pkg/logger"
	"learnsphere_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	unlockCacheTTL  = 30 * time.Second
	submitLockTTL   = 10 * time.Second
	submitLockTries = 40
)

// ProgressionService 实现测验门禁与判分推进：
// 进度记录和作答台账是唯一的事实来源，解锁状态只是投影
type ProgressionService struct {
	CourseRepo   *repository.CourseRepository
	ProgressRepo *repository.ProgressRepository
	AttemptRepo  *repository.AttemptRepository
	Certificates *CertificateService
	DB           *gorm.DB
	Redis        *redis.Client // 可为 nil（单实例部署/测试），锁退化为进程内互斥 + 版本 CAS

	now         func() time.Time
	submitLocks sync.Map // "userID:courseID" -> *sync.Mutex
}

func NewProgressionService(
	courseRepo *repository.CourseRepository,
	progressRepo *repository.ProgressRepository,
	attemptRepo *repository.AttemptRepository,
	certificates *CertificateService,
	db *gorm.DB,
	rdb *redis.Client,
) *ProgressionService {
	return &ProgressionService{
		CourseRepo:   courseRepo,
		ProgressRepo: progressRepo,
		AttemptRepo:  attemptRepo,
		Certificates: certificates,
		DB:           db,
		Redis:        rdb,
		now:          time.Now,
	}
}

type QuizAvailability struct {
	CanTake  bool               `json:"canTake"`
	Reason   string             `json:"reason,omitempty"` // locked / cooldown / already_completed
	Cooldown *CooldownRemaining `json:"cooldown,omitempty"`
}

type QuizQuestionView struct {
	ID      uint     `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
	Points  int      `json:"points"`
}

type QuizView struct {
	ModuleID     uint               `json:"moduleId"`
	Title        string             `json:"title"`
	PassingScore int                `json:"passingScore"`
	Questions    []QuizQuestionView `json:"questions"`
}

type SubmitResult struct {
	Score           int                `json:"score"`
	TotalPoints     int                `json:"totalPoints"`
	Percentage      int                `json:"percentage"`
	Passed          bool               `json:"passed"`
	AttemptNumber   int                `json:"attemptNumber"`
	CourseCompleted bool               `json:"courseCompleted"`
	Certificate     *model.Certificate `json:"certificate,omitempty"`
}

// GetUnlockStatus 返回与课程模块顺序一致的逐模块解锁状态
func (s *ProgressionService) GetUnlockStatus(userID, courseID uint) ([]ModuleUnlockStatus, error) {
	if cached := s.cachedUnlockStatus(userID, courseID); cached != nil {
		return cached, nil
	}

	course, err := s.CourseRepo.FindWithModules(courseID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrCourseNotFound
		}
		return nil, err
	}

	completed, err := s.ProgressRepo.CompletionSet(s.DB, userID, courseID)
	if err != nil {
		return nil, err
	}

	latest, err := s.AttemptRepo.LatestPerModule(s.DB, userID, courseID)
	if err != nil {
		return nil, err
	}

	statuses := ResolveUnlockStatus(course.Modules, completed, latest, s.now())
	s.cacheUnlockStatus(userID, courseID, statuses)
	return statuses, nil
}

// CheckQuizAvailability 门禁判定。存储读取失败时直接报错，
// 宁可暂时拒绝也不放行一次失控的重考
func (s *ProgressionService) CheckQuizAvailability(userID, courseID, moduleID uint) (*QuizAvailability, error) {
	course, err := s.CourseRepo.FindWithModules(courseID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrCourseNotFound
		}
		return nil, err
	}

	idx := moduleIndex(course.Modules, moduleID)
	if idx < 0 {
		return nil, util.ErrModuleNotFound
	}

	completed, err := s.ProgressRepo.CompletionSet(s.DB, userID, courseID)
	if err != nil {
		logger.Log.Error("completion ledger read failed", zap.Error(err))
		return nil, util.ErrStorageUnavailable
	}

	if _, done := completed[moduleID]; done {
		monitoring.GateDenials.WithLabelValues("already_completed").Inc()
		return &QuizAvailability{CanTake: false, Reason: "already_completed"}, nil
	}

	if idx > 0 {
		if _, prevDone := completed[course.Modules[idx-1].ID]; !prevDone {
			monitoring.GateDenials.WithLabelValues("locked").Inc()
			return &QuizAvailability{CanTake: false, Reason: "locked"}, nil
		}
	}

	latest, err := s.AttemptRepo.LatestByModule(s.DB, userID, moduleID)
	if err != nil {
		logger.Log.Error("attempt ledger read failed", zap.Error(err))
		return nil, util.ErrStorageUnavailable
	}

	if cooldown := RemainingCooldown(latest, s.now()); cooldown != nil {
		monitoring.GateDenials.WithLabelValues("cooldown").Inc()
		return &QuizAvailability{CanTake: false, Reason: "cooldown", Cooldown: cooldown}, nil
	}

	return &QuizAvailability{CanTake: true}, nil
}

// BuildQuizView 组装发给学习者的题目视图，正确答案永远不出服务端
func (s *ProgressionService) BuildQuizView(courseID, moduleID uint) (*QuizView, error) {
	course, err := s.CourseRepo.FindWithModules(courseID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrCourseNotFound
		}
		return nil, err
	}

	idx := moduleIndex(course.Modules, moduleID)
	if idx < 0 {
		return nil, util.ErrModuleNotFound
	}

	module := course.Modules[idx]
	view := &QuizView{
		ModuleID:     module.ID,
		Title:        module.Title,
		PassingScore: module.PassingScore,
		Questions:    make([]QuizQuestionView, len(module.Questions)),
	}
	for i, q := range module.Questions {
		view.Questions[i] = QuizQuestionView{
			ID:      q.ID,
			Text:    q.Text,
			Options: q.OptionList(),
			Points:  q.PointValue(),
		}
	}
	return view, nil
}

// SubmitQuiz 判分并推进进度。同一 (学习者, 课程) 的提交串行执行；
// 版本 CAS 冲突在内部重试一次后才上抛
func (s *ProgressionService) SubmitQuiz(userID, courseID, moduleID uint, answers []string) (*SubmitResult, error) {
	course, err := s.CourseRepo.FindWithModules(courseID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrCourseNotFound
		}
		return nil, err
	}

	idx := moduleIndex(course.Modules, moduleID)
	if idx < 0 {
		return nil, util.ErrModuleNotFound
	}

	mu := s.lockFor(userID, courseID)
	mu.Lock()
	defer mu.Unlock()

	if release := s.acquireRedisLock(userID, courseID); release != nil {
		defer release()
	}

	result, err := s.submitOnce(userID, course, idx, answers)
	if err == util.ErrConcurrentModification {
		// 合法的双击/重试场景，重试一次
		result, err = s.submitOnce(userID, course, idx, answers)
	}
	if err != nil {
		switch err {
		case util.ErrModuleLocked:
			monitoring.GateDenials.WithLabelValues("locked").Inc()
		case util.ErrQuizOnCooldown:
			monitoring.GateDenials.WithLabelValues("cooldown").Inc()
		case util.ErrModuleAlreadyCompleted:
			monitoring.GateDenials.WithLabelValues("already_completed").Inc()
		}
		return nil, err
	}

	if result.Passed {
		s.invalidateUnlockCache(userID, courseID)
		monitoring.QuizSubmissions.WithLabelValues("passed").Inc()
	} else {
		monitoring.QuizSubmissions.WithLabelValues("failed").Inc()
	}

	logger.Log.Info("quiz submitted",
		zap.Uint("userId", userID),
		zap.Uint("courseId", courseID),
		zap.Uint("moduleId", moduleID),
		zap.Int("attempt", result.AttemptNumber),
		zap.Int("percentage", result.Percentage),
		zap.Bool("passed", result.Passed),
		zap.Bool("courseCompleted", result.CourseCompleted))

	return result, nil
}

// submitOnce 在单个事务里完成 作答落账 + 进度推进 + 课程完成判定。
// 通过的作答和对应的进度更新要么一起可见要么都不可见
func (s *ProgressionService) submitOnce(userID uint, course *model.Course, idx int, answers []string) (*SubmitResult, error) {
	module := course.Modules[idx]
	now := s.now()

	var result SubmitResult
	var issueCertificate bool
	var completedIDs []uint

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		progress, err := s.ProgressRepo.GetOrCreate(tx, userID, course.ID)
		if err != nil {
			return err
		}

		completed, err := s.ProgressRepo.CompletionSet(tx, userID, course.ID)
		if err != nil {
			logger.Log.Error("completion ledger read failed", zap.Error(err))
			return util.ErrStorageUnavailable
		}

		// 已通过的模块是终态：重试一次成功的提交不得再消耗作答记录
		if _, done := completed[module.ID]; done {
			return util.ErrModuleAlreadyCompleted
		}

		if idx > 0 {
			if _, prevDone := completed[course.Modules[idx-1].ID]; !prevDone {
				return util.ErrModuleLocked
			}
		}

		latest, err := s.AttemptRepo.LatestByModule(tx, userID, module.ID)
		if err != nil {
			logger.Log.Error("attempt ledger read failed", zap.Error(err))
			return util.ErrStorageUnavailable
		}
		if RemainingCooldown(latest, now) != nil {
			return util.ErrQuizOnCooldown
		}

		score, totalPoints := scoreAnswers(module.Questions, answers)
		percentage := 0
		if totalPoints > 0 {
			percentage = int(math.Round(float64(score) / float64(totalPoints) * 100))
		}
		passed := percentage >= module.PassingScore

		attemptNumber, err := s.AttemptRepo.NextAttemptNumber(tx, userID, module.ID)
		if err != nil {
			return err
		}

		// 作答记录无条件追加：它既是审计痕迹也是冷却锚点
		attempt := &model.QuizAttempt{
			UserID:        userID,
			CourseID:      course.ID,
			ModuleID:      module.ID,
			AttemptNumber: attemptNumber,
			Score:         score,
			TotalPoints:   totalPoints,
			Percentage:    percentage,
			Passed:        passed,
			AttemptedAt:   now,
		}
		if err := s.AttemptRepo.Create(tx, attempt); err != nil {
			return err
		}

		result = SubmitResult{
			Score:         score,
			TotalPoints:   totalPoints,
			Percentage:    percentage,
			Passed:        passed,
			AttemptNumber: attemptNumber,
		}

		if !passed {
			return nil
		}

		if err := s.ProgressRepo.AddCompletion(tx, userID, course.ID, module.ID, now); err != nil {
			return err
		}

		moduleID := module.ID
		progress.LastModuleID = &moduleID
		if err := s.ProgressRepo.SaveWithVersion(tx, progress); err != nil {
			return err
		}

		completed[module.ID] = now
		for _, m := range course.Modules {
			if _, done := completed[m.ID]; !done {
				return nil
			}
		}

		// 全部模块已完成：完成时间只允许首个写入者设置
		winner, err := s.ProgressRepo.MarkCourseCompleted(tx, progress.ID, now)
		if err != nil {
			return err
		}
		result.CourseCompleted = true
		issueCertificate = winner
		for id := range completed {
			completedIDs = append(completedIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if issueCertificate {
		cert, err := s.Certificates.Issue(userID, course.ID, now, completedIDs)
		if err != nil {
			// 进度已落库，证书可由查询端补发，这里只记录不回滚
			logger.Log.Error("certificate issue failed",
				zap.Uint("userId", userID),
				zap.Uint("courseId", course.ID),
				zap.Error(err))
		} else {
			result.Certificate = cert
		}
	} else if result.CourseCompleted {
		if cert, err := s.Certificates.CertRepo.FindByUserAndCourse(userID, course.ID); err == nil {
			result.Certificate = cert
		}
	}

	return &result, nil
}

// scoreAnswers 按选项文本精确比对判分，不给部分分。
// answers 按题目顺序排列，缺失的答案按错误计
func scoreAnswers(questions []model.QuizQuestion, answers []string) (score, totalPoints int) {
	for i, q := range questions {
		points := q.PointValue()
		totalPoints += points
		if i >= len(answers) {
			continue
		}
		if answers[i] != "" && answers[i] == q.CorrectOptionText() {
			score += points
		}
	}
	return score, totalPoints
}

func moduleIndex(modules []model.CourseModule, moduleID uint) int {
	for i, m := range modules {
		if m.ID == moduleID {
			return i
		}
	}
	return -1
}

func (s *ProgressionService) lockFor(userID, courseID uint) *sync.Mutex {
	key := fmt.Sprintf("%d:%d", userID, courseID)
	mu, _ := s.submitLocks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// acquireRedisLock 多实例部署时跨进程串行化提交；Redis 不可用时
// 返回 nil，由进程内互斥和版本 CAS 兜底
func (s *ProgressionService) acquireRedisLock(userID, courseID uint) func() {
	if s.Redis == nil {
		return nil
	}

	ctx := context.Background()
	key := fmt.Sprintf("progress:lock:%d:%d", userID, courseID)

	for i := 0; i < submitLockTries; i++ {
		ok, err := s.Redis.SetNX(ctx, key, 1, submitLockTTL).Result()
		if err != nil {
			logger.Log.Warn("redis submit lock unavailable", zap.Error(err))
			return nil
		}
		if ok {
			return func() { s.Redis.Del(ctx, key) }
		}
		time.Sleep(250 * time.Millisecond)
	}
	return nil
}

func unlockCacheKey(userID, courseID uint) string {
	return fmt.Sprintf("progress:unlock:%d:%d", userID, courseID)
}

func (s *ProgressionService) cachedUnlockStatus(userID, courseID uint) []ModuleUnlockStatus {
	if s.Redis == nil {
		return nil
	}
	data, err := s.Redis.Get(context.Background(), unlockCacheKey(userID, courseID)).Bytes()
	if err != nil {
		return nil
	}
	var statuses []ModuleUnlockStatus
	if json.Unmarshal(data, &statuses) != nil {
		return nil
	}
	return statuses
}

func (s *ProgressionService) cacheUnlockStatus(userID, courseID uint, statuses []ModuleUnlockStatus) {
	if s.Redis == nil {
		return
	}
	data, err := json.Marshal(statuses)
	if err != nil {
		return
	}
	s.Redis.Set(context.Background(), unlockCacheKey(userID, courseID), data, unlockCacheTTL)
}

func (s *ProgressionService) invalidateUnlockCache(userID, courseID uint) {
	if s.Redis == nil {
		return
	}
	s.Redis.Del(context.Background(), unlockCacheKey(userID, courseID))
}
