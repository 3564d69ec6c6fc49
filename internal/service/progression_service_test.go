package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"learnsphere_backend/internal/model"
	"learnsphere_backend/internal/repository"
	"learnsphere_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// 单连接串行化，避免共享缓存内存库在并发用例里报 SQLITE_BUSY
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Course{},
		&model.CourseModule{},
		&model.QuizQuestion{},
		&model.CourseProgress{},
		&model.ModuleCompletion{},
		&model.QuizAttempt{},
		&model.Certificate{},
	))
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *ProgressionService {
	t.Helper()
	courseRepo := repository.NewCourseRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	certRepo := repository.NewCertificateRepository(db)
	certSvc := NewCertificateService(certRepo, progressRepo)
	return NewProgressionService(courseRepo, progressRepo, attemptRepo, certSvc, db, nil)
}

type questionSpec struct {
	options []string
	correct int
}

type moduleSpec struct {
	passing   int
	questions []questionSpec
}

// fourOptions 题目模板：四个选项，正确答案是 "C"
var fourOptions = questionSpec{options: []string{"A", "B", "C", "D"}, correct: 2}

func seedCourse(t *testing.T, db *gorm.DB, specs []moduleSpec) *model.Course {
	t.Helper()
	course := &model.Course{Title: "测试课程", Category: "test", Published: true}
	require.NoError(t, db.Create(course).Error)

	for i, spec := range specs {
		module := &model.CourseModule{
			CourseID:     course.ID,
			Title:        fmt.Sprintf("模块 %d", i+1),
			Order:        i,
			PassingScore: spec.passing,
		}
		require.NoError(t, db.Create(module).Error)
		for j, q := range spec.questions {
			opts, err := json.Marshal(q.options)
			require.NoError(t, err)
			require.NoError(t, db.Create(&model.QuizQuestion{
				ModuleID:      module.ID,
				Text:          fmt.Sprintf("题目 %d", j+1),
				Options:       string(opts),
				CorrectAnswer: q.correct,
				Points:        1,
				Order:         j,
			}).Error)
		}
	}

	loaded, err := repository.NewCourseRepository(db).FindWithModules(course.ID)
	require.NoError(t, err)
	return loaded
}

func repeatSpec(q questionSpec, n int) []questionSpec {
	specs := make([]questionSpec, n)
	for i := range specs {
		specs[i] = q
	}
	return specs
}

// answers 生成 n 个答案：前 correct 个答对，其余答错
func answers(n, correct int) []string {
	out := make([]string, n)
	for i := range out {
		if i < correct {
			out[i] = "C"
		} else {
			out[i] = "A"
		}
	}
	return out
}

func freezeClock(svc *ProgressionService, at time.Time) *time.Time {
	current := at
	svc.now = func() time.Time { return current }
	return &current
}

const learnerID = uint(42)

func TestSubmitQuiz_PassAdvancesProgress(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	course := seedCourse(t, db, []moduleSpec{
		{passing: 50, questions: repeatSpec(fourOptions, 2)},
		{passing: 50, questions: repeatSpec(fourOptions, 2)},
	})

	result, err := svc.SubmitQuiz(learnerID, course.ID, course.Modules[0].ID, answers(2, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Score)
	assert.Equal(t, 2, result.TotalPoints)
	assert.Equal(t, 100, result.Percentage)
	assert.True(t, result.Passed)
	assert.Equal(t, 1, result.AttemptNumber)
	assert.False(t, result.CourseCompleted)

	statuses, err := svc.GetUnlockStatus(learnerID, course.ID)
	require.NoError(t, err)
	assert.True(t, statuses[0].IsCompleted)
	assert.False(t, statuses[0].CanTakeQuiz)
	assert.True(t, statuses[1].IsUnlocked)
	assert.True(t, statuses[1].CanTakeQuiz)
}

func TestSubmitQuiz_LockedModuleDenied(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	course := seedCourse(t, db, []moduleSpec{
		{passing: 50, questions: repeatSpec(fourOptions, 1)},
		{passing: 50, questions: repeatSpec(fourOptions, 1)},
	})

	_, err := svc.SubmitQuiz(learnerID, course.ID, course.Modules[1].ID, answers(1, 1))
	assert.Equal(t, util.ErrModuleLocked, err)

	// 被锁定的提交不产生作答记录
	var count int64
	db.Model(&model.QuizAttempt{}).Where("user_id = ?", learnerID).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestSubmitQuiz_AnswersComparedByTextNotIndex(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	course := seedCourse(t, db, []moduleSpec{
		{passing: 100, questions: repeatSpec(fourOptions, 1)},
	})

	// 提交下标 "2" 而不是选项文本：判错
	result, err := svc.SubmitQuiz(learnerID, course.ID, course.Modules[0].ID, []string{"2"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Score)
	assert.False(t, result.Passed)
}

func TestSubmitQuiz_FailStartsCooldown(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	freezeClock(svc, now)

	course := seedCourse(t, db, []moduleSpec{
		{passing: 50, questions: repeatSpec(fourOptions, 5)},
	})
	moduleID := course.Modules[0].ID

	result, err := svc.SubmitQuiz(learnerID, course.ID, moduleID, answers(5, 2))
	require.NoError(t, err)
	assert.Equal(t, 40, result.Percentage)
	assert.False(t, result.Passed)

	// 冷却期内重考被拒，且不再消耗作答序号
	_, err = svc.SubmitQuiz(learnerID, course.ID, moduleID, answers(5, 5))
	assert.Equal(t, util.ErrQuizOnCooldown, err)

	availability, err := svc.CheckQuizAvailability(learnerID, course.ID, moduleID)
	require.NoError(t, err)
	assert.False(t, availability.CanTake)
	assert.Equal(t, "cooldown", availability.Reason)
	require.NotNil(t, availability.Cooldown)
	assert.Equal(t, 24, availability.Cooldown.Hours)

	var count int64
	db.Model(&model.QuizAttempt{}).Where("user_id = ? AND module_id = ?", learnerID, moduleID).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestSubmitQuiz_FailedAttemptNumbersMonotonic(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := freezeClock(svc, now)

	course := seedCourse(t, db, []moduleSpec{
		{passing: 100, questions: repeatSpec(fourOptions, 2)},
	})
	moduleID := course.Modules[0].ID

	first, err := svc.SubmitQuiz(learnerID, course.ID, moduleID, answers(2, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, first.AttemptNumber)

	*clock = now.Add(QuizRetryCooldown)
	second, err := svc.SubmitQuiz(learnerID, course.ID, moduleID, answers(2, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, second.AttemptNumber)
}

// 规格场景：四模块课程，顺序通过 0-2，模块 3 以 40% 失败，
// 24 小时后以高于 70% 阈值的成绩通过并拿到证书
func TestSubmitQuiz_FourModuleWalkthrough(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := freezeClock(svc, now)

	course := seedCourse(t, db, []moduleSpec{
		{passing: 50, questions: repeatSpec(fourOptions, 2)},
		{passing: 50, questions: repeatSpec(fourOptions, 2)},
		{passing: 50, questions: repeatSpec(fourOptions, 2)},
		{passing: 70, questions: repeatSpec(fourOptions, 5)},
	})

	for i := 0; i < 3; i++ {
		result, err := svc.SubmitQuiz(learnerID, course.ID, course.Modules[i].ID, answers(2, 2))
		require.NoError(t, err)
		require.True(t, result.Passed)
		assert.False(t, result.CourseCompleted)
	}

	finalID := course.Modules[3].ID
	failed, err := svc.SubmitQuiz(learnerID, course.ID, finalID, answers(5, 2))
	require.NoError(t, err)
	assert.Equal(t, 40, failed.Percentage)
	assert.False(t, failed.Passed)

	statuses, err := svc.GetUnlockStatus(learnerID, course.ID)
	require.NoError(t, err)
	assert.True(t, statuses[3].IsUnlocked)
	assert.False(t, statuses[3].IsCompleted)
	assert.False(t, statuses[3].CanTakeQuiz)

	progress, err := svc.ProgressRepo.Find(learnerID, course.ID)
	require.NoError(t, err)
	assert.Nil(t, progress.CompletedAt)

	// 冷却结束后通过
	*clock = now.Add(QuizRetryCooldown)
	passed, err := svc.SubmitQuiz(learnerID, course.ID, finalID, answers(5, 4))
	require.NoError(t, err)
	assert.Equal(t, 80, passed.Percentage)
	assert.True(t, passed.Passed)
	assert.True(t, passed.CourseCompleted)
	require.NotNil(t, passed.Certificate)
	assert.Equal(t, 4, passed.Certificate.ModuleCount)

	progress, err = svc.ProgressRepo.Find(learnerID, course.ID)
	require.NoError(t, err)
	require.NotNil(t, progress.CompletedAt)
	assert.True(t, progress.CompletedAt.Equal(*clock))
}

func TestSubmitQuiz_ResubmitAfterPassIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	course := seedCourse(t, db, []moduleSpec{
		{passing: 50, questions: repeatSpec(fourOptions, 1)},
	})
	moduleID := course.Modules[0].ID

	result, err := svc.SubmitQuiz(learnerID, course.ID, moduleID, answers(1, 1))
	require.NoError(t, err)
	assert.True(t, result.CourseCompleted)
	require.NotNil(t, result.Certificate)

	// 超时重试同一份通过的答卷：不产生第二次完成、第二张证书或新的作答记录
	_, err = svc.SubmitQuiz(learnerID, course.ID, moduleID, answers(1, 1))
	assert.Equal(t, util.ErrModuleAlreadyCompleted, err)

	var attempts, completions, certs int64
	db.Model(&model.QuizAttempt{}).Where("user_id = ?", learnerID).Count(&attempts)
	db.Model(&model.ModuleCompletion{}).Where("user_id = ?", learnerID).Count(&completions)
	db.Model(&model.Certificate{}).Where("user_id = ?", learnerID).Count(&certs)
	assert.EqualValues(t, 1, attempts)
	assert.EqualValues(t, 1, completions)
	assert.EqualValues(t, 1, certs)
}

func TestSubmitQuiz_ConcurrentFinalSubmissionsIssueOneCertificate(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	course := seedCourse(t, db, []moduleSpec{
		{passing: 50, questions: repeatSpec(fourOptions, 1)},
		{passing: 50, questions: repeatSpec(fourOptions, 1)},
	})

	_, err := svc.SubmitQuiz(learnerID, course.ID, course.Modules[0].ID, answers(1, 1))
	require.NoError(t, err)

	finalID := course.Modules[1].ID
	const workers = 8

	var wg sync.WaitGroup
	results := make([]*SubmitResult, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.SubmitQuiz(learnerID, course.ID, finalID, answers(1, 1))
		}(i)
	}
	wg.Wait()

	accepted := 0
	for i := 0; i < workers; i++ {
		if errs[i] == nil {
			accepted++
			assert.True(t, results[i].CourseCompleted)
		} else {
			assert.Equal(t, util.ErrModuleAlreadyCompleted, errs[i])
		}
	}
	assert.Equal(t, 1, accepted, "exactly one submission wins the completion")

	var attempts, certs int64
	db.Model(&model.QuizAttempt{}).Where("user_id = ? AND module_id = ?", learnerID, finalID).Count(&attempts)
	db.Model(&model.Certificate{}).Where("user_id = ?", learnerID).Count(&certs)
	assert.EqualValues(t, 1, attempts)
	assert.EqualValues(t, 1, certs)
}

func TestSubmitQuiz_PercentageRounding(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	course := seedCourse(t, db, []moduleSpec{
		{passing: 70, questions: repeatSpec(fourOptions, 3)},
	})

	result, err := svc.SubmitQuiz(learnerID, course.ID, course.Modules[0].ID, answers(3, 2))
	require.NoError(t, err)
	assert.Equal(t, 67, result.Percentage, "2/3 rounds to 67")
	assert.False(t, result.Passed)
}

func TestCheckQuizAvailability_LockedWithoutAttempts(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	course := seedCourse(t, db, []moduleSpec{
		{passing: 50, questions: repeatSpec(fourOptions, 1)},
		{passing: 50, questions: repeatSpec(fourOptions, 1)},
	})

	// 从未作答但前置未完成：锁定优先于冷却语义
	availability, err := svc.CheckQuizAvailability(learnerID, course.ID, course.Modules[1].ID)
	require.NoError(t, err)
	assert.False(t, availability.CanTake)
	assert.Equal(t, "locked", availability.Reason)
	assert.Nil(t, availability.Cooldown)
}

func TestCheckQuizAvailability_UnknownCourseOrModule(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	course := seedCourse(t, db, []moduleSpec{
		{passing: 50, questions: repeatSpec(fourOptions, 1)},
	})

	_, err := svc.CheckQuizAvailability(learnerID, 9999, 1)
	assert.Equal(t, util.ErrCourseNotFound, err)

	_, err = svc.CheckQuizAvailability(learnerID, course.ID, 9999)
	assert.Equal(t, util.ErrModuleNotFound, err)
}

func TestGetUnlockStatus_LazyProgressCreation(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	course := seedCourse(t, db, []moduleSpec{
		{passing: 50, questions: repeatSpec(fourOptions, 1)},
		{passing: 50, questions: repeatSpec(fourOptions, 1)},
	})

	// 纯读操作不落进度记录
	statuses, err := svc.GetUnlockStatus(learnerID, course.ID)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].IsUnlocked)
	assert.False(t, statuses[1].IsUnlocked)

	var count int64
	db.Model(&model.CourseProgress{}).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestBuildQuizView_NeverLeaksCorrectAnswer(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	course := seedCourse(t, db, []moduleSpec{
		{passing: 50, questions: repeatSpec(fourOptions, 2)},
	})

	view, err := svc.BuildQuizView(course.ID, course.Modules[0].ID)
	require.NoError(t, err)
	require.Len(t, view.Questions, 2)

	data, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "correctAnswer")
	assert.Equal(t, []string{"A", "B", "C", "D"}, view.Questions[0].Options)
}
