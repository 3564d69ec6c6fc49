package controller

import (
	"learnsphere_backend/internal/service"
	"learnsphere_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// CourseController 面向学习者的只读课程目录；课程内容的创作与维护在创作端完成
type CourseController struct {
	ProgressionService *service.ProgressionService
}

func NewCourseController(progressionService *service.ProgressionService) *CourseController {
	return &CourseController{ProgressionService: progressionService}
}

// @Summary 课程列表
// @Description 按分类和关键词筛选已发布课程
// @Tags 课程目录
// @Produce json
// @Security ApiKeyAuth
// @Param category query string false "分类"
// @Param keyword query string false "标题关键词"
// @Success 200 {object} util.Response
// @Router /courses [get]
func (c *CourseController) ListCourses(ctx *gin.Context) {
	courses, err := c.ProgressionService.CourseRepo.List(ctx.Query("category"), ctx.Query("keyword"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, courses)
}

// @Summary 课程详情
// @Description 课程信息叠加当前学习者的逐模块解锁状态；不包含题目内容
// @Tags 课程目录
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /courses/{courseId} [get]
func (c *CourseController) GetCourse(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	courseID := util.MustParseUint(ctx.Param("courseId"))
	course, err := c.ProgressionService.CourseRepo.FindWithModules(courseID)
	if err != nil {
		util.NotFound(ctx)
		return
	}

	statuses, err := c.ProgressionService.GetUnlockStatus(user.UserID, courseID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	// 题目不随课程详情下发，作答入口单独走门禁
	for i := range course.Modules {
		course.Modules[i].Questions = nil
	}

	util.Success(ctx, gin.H{
		"course":  course,
		"modules": statuses,
	})
}
