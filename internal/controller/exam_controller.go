package controller

import (
	"exam_practice_backend/internal/model"
	"exam_practice_backend/internal/scheduler"
	"exam_practice_backend/internal/service"
	"exam_practice_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	Service *service.ExamService
	Timeout *scheduler.TimeoutScanner
}

func NewExamController(svc *service.ExamService, timeout *scheduler.TimeoutScanner) *ExamController {
	return &ExamController{Service: svc, Timeout: timeout}
}

// @Summary 创建试卷 (管理员)
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body service.PaperRequest true "试卷信息"
// @Success 201 {object} util.Response{data=model.ExamPaper}
// @Router /admin/exam/papers [post]
func (c *ExamController) CreatePaper(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req service.PaperRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	paper, err := c.Service.CreatePaper(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, paper)
}

// @Summary 更新试卷 (管理员)
// @Description 已发布的试卷不可修改
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "试卷ID"
// @Param body body service.PaperRequest true "试卷信息"
// @Success 200 {object} util.Response{data=model.ExamPaper}
// @Router /admin/exam/papers/{id} [put]
func (c *ExamController) UpdatePaper(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.PaperRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	paper, err := c.Service.UpdatePaper(ctx.Request.Context(), id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, paper)
}

// @Summary 发布试卷 (管理员)
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "试卷ID"
// @Success 200 {object} util.Response{data=model.ExamPaper}
// @Router /admin/exam/papers/{id}/publish [post]
func (c *ExamController) PublishPaper(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	paper, err := c.Service.PublishPaper(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, paper)
}

// @Summary 试卷列表
// @Description 学生只能看到已发布的试卷
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param status query string false "draft/published"
// @Param page query int false "页码"
// @Param pageSize query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResult}
// @Router /exam/papers [get]
func (c *ExamController) ListPapers(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	page, ok := bindPage(ctx)
	if !ok {
		return
	}

	result, err := c.Service.ListPapers(ctx.Request.Context(), user.Role, model.PaperStatus(ctx.Query("status")), page)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 试卷详情
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "试卷ID"
// @Success 200 {object} util.Response{data=model.ExamPaper}
// @Router /exam/papers/{id} [get]
func (c *ExamController) GetPaper(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	paper, err := c.Service.GetPaper(ctx.Request.Context(), user.Role, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, paper)
}

// @Summary 开始考试
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "试卷ID"
// @Success 201 {object} util.Response{data=model.ExamAttempt}
// @Router /exam/papers/{id}/attempts [post]
func (c *ExamController) StartAttempt(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	paperID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	attempt, err := c.Service.StartAttempt(ctx.Request.Context(), user.UserID, paperID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, attempt)
}

// @Summary 提交考试题目答案
// @Description 超过时限的提交会结束作答并返回 409
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作答ID"
// @Param itemId path int true "题目项ID"
// @Param body body service.SubmitAnswerRequest true "答案"
// @Success 200 {object} util.Response{data=service.AttemptSubmitResult}
// @Router /exam/attempts/{id}/items/{itemId}/submit [post]
func (c *ExamController) SubmitAttemptItem(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	attemptID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	itemID, ok := pathID(ctx, "itemId")
	if !ok {
		return
	}
	var req service.SubmitAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.Service.SubmitAttemptItem(ctx.Request.Context(), user.UserID, attemptID, itemID, req.Answer)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 交卷
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response{data=service.AttemptReport}
// @Router /exam/attempts/{id}/finish [post]
func (c *ExamController) FinishAttempt(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	report, err := c.Service.FinishAttempt(ctx.Request.Context(), user.UserID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, report)
}

// @Summary 作答报告
// @Description 学生只能查看自己的报告，教师与管理员可查看全部
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response{data=service.AttemptReport}
// @Router /exam/attempts/{id}/report [get]
func (c *ExamController) GetAttemptReport(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	report, err := c.Service.GetAttemptReport(ctx.Request.Context(), user.UserID, user.Role, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, report)
}

// @Summary 主观题评分 (管理员)
// @Description 仅限已结束的作答
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作答ID"
// @Param itemId path int true "题目项ID"
// @Param body body service.GradeItemRequest true "评分"
// @Success 200 {object} util.Response{data=service.AttemptReport}
// @Router /admin/exam/attempts/{id}/items/{itemId}/grade [post]
func (c *ExamController) GradeAttemptItem(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	attemptID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	itemID, ok := pathID(ctx, "itemId")
	if !ok {
		return
	}
	var req service.GradeItemRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	report, err := c.Service.GradeAttemptItem(ctx.Request.Context(), user.UserID, attemptID, itemID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, report)
}

// @Summary 手动触发超时扫描 (管理员)
// @Description 已有扫描在进行时返回 skipped=true
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=scheduler.ScanResult}
// @Router /admin/exam/timeout-scan [post]
func (c *ExamController) ManualTimeoutScan(ctx *gin.Context) {
	result, err := c.Timeout.Scan(ctx.Request.Context())
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 超时概况 (管理员)
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=scheduler.TimeoutSummary}
// @Router /admin/exam/timeout-summary [get]
func (c *ExamController) TimeoutSummary(ctx *gin.Context) {
	summary, err := c.Timeout.Summary(ctx.Request.Context())
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, summary)
}
