package controller

import (
	"learnsphere_backend/internal/service"
	"learnsphere_backend/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ProgressionController struct {
	ProgressionService *service.ProgressionService
}

func NewProgressionController(progressionService *service.ProgressionService) *ProgressionController {
	return &ProgressionController{ProgressionService: progressionService}
}

// @Summary 获取课程解锁状态
// @Description 返回按模块顺序排列的解锁/完成/可作答状态，前端不自行推算
// @Tags 学习进度
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /courses/{courseId}/unlock-status [get]
func (c *ProgressionController) GetUnlockStatus(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	courseID := util.MustParseUint(ctx.Param("courseId"))
	statuses, err := c.ProgressionService.GetUnlockStatus(user.UserID, courseID)
	if err != nil {
		if err == util.ErrCourseNotFound {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, statuses)
}

// @Summary 查询测验可用性
// @Description 判定当前能否作答；被拒绝时返回原因和剩余冷却时间
// @Tags 学习进度
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path int true "课程ID"
// @Param moduleId path int true "模块ID"
// @Success 200 {object} util.Response
// @Router /courses/{courseId}/modules/{moduleId}/quiz/availability [post]
func (c *ProgressionController) CheckQuizAvailability(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	courseID := util.MustParseUint(ctx.Param("courseId"))
	moduleID := util.MustParseUint(ctx.Param("moduleId"))

	availability, err := c.ProgressionService.CheckQuizAvailability(user.UserID, courseID, moduleID)
	if err != nil {
		switch err {
		case util.ErrCourseNotFound, util.ErrModuleNotFound:
			util.NotFound(ctx)
		default:
			// 台账读不到时拒绝放行，绝不默许重考
			util.ServiceUnavailable(ctx, "availability check failed, try again later")
		}
		return
	}

	util.Success(ctx, availability)
}

// @Summary 获取模块测验题目
// @Description 门禁放行后返回题目与选项，正确答案不随响应下发
// @Tags 学习进度
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path int true "课程ID"
// @Param moduleId path int true "模块ID"
// @Success 200 {object} util.Response
// @Router /courses/{courseId}/modules/{moduleId}/quiz [get]
func (c *ProgressionController) GetQuiz(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	courseID := util.MustParseUint(ctx.Param("courseId"))
	moduleID := util.MustParseUint(ctx.Param("moduleId"))

	availability, err := c.ProgressionService.CheckQuizAvailability(user.UserID, courseID, moduleID)
	if err != nil {
		switch err {
		case util.ErrCourseNotFound, util.ErrModuleNotFound:
			util.NotFound(ctx)
		default:
			util.ServiceUnavailable(ctx, "availability check failed, try again later")
		}
		return
	}
	if !availability.CanTake {
		util.Success(ctx, gin.H{"available": false, "reason": availability.Reason, "cooldown": availability.Cooldown})
		return
	}

	view, err := c.ProgressionService.BuildQuizView(courseID, moduleID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"available": true, "quiz": view})
}

type SubmitQuizRequest struct {
	Answers []string `json:"answers" binding:"required"`
}

// @Summary 提交测验答案
// @Description 判分并推进进度；通过最后一个模块时返回结业证书
// @Tags 学习进度
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path int true "课程ID"
// @Param moduleId path int true "模块ID"
// @Param submission body SubmitQuizRequest true "按题目顺序排列的选项文本"
// @Success 200 {object} util.Response
// @Router /courses/{courseId}/modules/{moduleId}/quiz/submit [post]
func (c *ProgressionController) SubmitQuiz(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	courseID := util.MustParseUint(ctx.Param("courseId"))
	moduleID := util.MustParseUint(ctx.Param("moduleId"))

	var req SubmitQuizRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.ProgressionService.SubmitQuiz(user.UserID, courseID, moduleID, req.Answers)
	if err != nil {
		switch err {
		case util.ErrCourseNotFound, util.ErrModuleNotFound:
			util.NotFound(ctx)
		case util.ErrModuleLocked:
			// 预期中的否定结果，带原因返回而不是报错
			util.Success(ctx, gin.H{"accepted": false, "reason": "locked"})
		case util.ErrQuizOnCooldown:
			availability, availErr := c.ProgressionService.CheckQuizAvailability(user.UserID, courseID, moduleID)
			payload := gin.H{"accepted": false, "reason": "cooldown"}
			if availErr == nil {
				payload["cooldown"] = availability.Cooldown
			}
			util.Success(ctx, payload)
		case util.ErrModuleAlreadyCompleted:
			util.Success(ctx, gin.H{"accepted": false, "reason": "already_completed"})
		case util.ErrConcurrentModification:
			util.Conflict(ctx, "submission conflicted, please retry")
		case util.ErrStorageUnavailable:
			util.ServiceUnavailable(ctx, "submission could not be processed, try again later")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, gin.H{"accepted": true, "result": result})
}

// @Summary 查询模块作答历史
// @Description 返回该模块的全部作答记录，按次序排列
// @Tags 学习进度
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path int true "课程ID"
// @Param moduleId path int true "模块ID"
// @Success 200 {object} util.Response
// @Router /courses/{courseId}/modules/{moduleId}/attempts [get]
func (c *ProgressionController) ListAttempts(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	moduleID := util.MustParseUint(ctx.Param("moduleId"))
	attempts, err := c.ProgressionService.AttemptRepo.ListByModule(user.UserID, moduleID)
	if err != nil && err != gorm.ErrRecordNotFound {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, attempts)
}
