package controller

import (
	"exam_practice_backend/internal/model"
	"exam_practice_backend/internal/repository"
	"exam_practice_backend/internal/service"
	"exam_practice_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type GradingController struct {
	Service *service.GradingService
}

func NewGradingController(svc *service.GradingService) *GradingController {
	return &GradingController{Service: svc}
}

// @Summary 阅卷任务列表 (教师/管理员)
// @Tags 阅卷
// @Produce json
// @Security ApiKeyAuth
// @Param status query string false "pending/assigned/done/reopen"
// @Param mine query bool false "只看分配给我的"
// @Param studentId query int false "学生ID"
// @Param page query int false "页码"
// @Param pageSize query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResult}
// @Router /grading/tasks [get]
func (c *GradingController) ListTasks(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	page, ok := bindPage(ctx)
	if !ok {
		return
	}

	f := repository.GradingTaskFilter{Status: model.GradingTaskStatus(ctx.Query("status"))}
	if mine := util.ParseOptionalBool(ctx.Query("mine")); mine != nil && *mine {
		f.AssigneeID = &user.UserID
	}
	if sid := util.MustParseUint(ctx.Query("studentId")); sid != 0 {
		f.StudentID = &sid
	}

	result, err := c.Service.ListTasks(ctx.Request.Context(), f, page)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 阅卷任务详情 (教师/管理员)
// @Tags 阅卷
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "任务ID"
// @Success 200 {object} util.Response{data=service.GradingTaskDetail}
// @Router /grading/tasks/{id} [get]
func (c *GradingController) GetTask(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	detail, err := c.Service.GetTask(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, detail)
}

// @Summary 领取阅卷任务 (教师/管理员)
// @Tags 阅卷
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "任务ID"
// @Success 200 {object} util.Response{data=model.ManualGradingTask}
// @Router /grading/tasks/{id}/claim [post]
func (c *GradingController) ClaimTask(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	task, err := c.Service.ClaimTask(ctx.Request.Context(), id, user.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, task)
}

// @Summary 提交阅卷结果 (教师/管理员)
// @Description 分数与是否通过同步写回练习记录
// @Tags 阅卷
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "任务ID"
// @Param body body service.GradingSubmitRequest true "评分"
// @Success 200 {object} util.Response{data=model.ManualGradingTask}
// @Router /grading/tasks/{id}/submit [post]
func (c *GradingController) SubmitTask(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.GradingSubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	task, err := c.Service.SubmitTask(ctx.Request.Context(), id, user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, task)
}

// @Summary 重新打开阅卷任务 (管理员)
// @Tags 阅卷
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "任务ID"
// @Param body body service.ReopenRequest true "原因"
// @Success 200 {object} util.Response{data=model.ManualGradingTask}
// @Router /admin/grading/tasks/{id}/reopen [post]
func (c *GradingController) ReopenTask(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.ReopenRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	task, err := c.Service.ReopenTask(ctx.Request.Context(), id, user.UserID, req.Reason)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, task)
}
