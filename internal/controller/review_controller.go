package controller

import (
	"exam_practice_backend/internal/scheduler"
	"exam_practice_backend/internal/service"
	"exam_practice_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ReviewController struct {
	Practice  *service.PracticeService
	WrongBook *service.WrongBookService
	Daily     *scheduler.DailyReviewGenerator
}

func NewReviewController(practice *service.PracticeService, wrongBook *service.WrongBookService, daily *scheduler.DailyReviewGenerator) *ReviewController {
	return &ReviewController{Practice: practice, WrongBook: wrongBook, Daily: daily}
}

type setMasteredRequest struct {
	Mastered bool `json:"mastered"`
}

type generateRequest struct {
	RunDate string `json:"runDate"`
}

// @Summary 错题本
// @Tags 复习
// @Produce json
// @Security ApiKeyAuth
// @Param mastered query bool false "是否已掌握"
// @Param page query int false "页码"
// @Param pageSize query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResult}
// @Router /review/wrong-book [get]
func (c *ReviewController) ListWrongBook(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	page, ok := bindPage(ctx)
	if !ok {
		return
	}

	result, err := c.WrongBook.ListWrongBook(ctx.Request.Context(), user.UserID, util.ParseOptionalBool(ctx.Query("mastered")), page)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 标记错题掌握状态
// @Tags 复习
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "错题ID"
// @Param body body setMasteredRequest true "掌握状态"
// @Success 200 {object} util.Response{data=model.WrongBook}
// @Router /review/wrong-book/{id}/mastered [patch]
func (c *ReviewController) SetMastered(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req setMasteredRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	wb, err := c.WrongBook.SetMastered(ctx.Request.Context(), user.UserID, id, req.Mastered)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, wb)
}

// @Summary 提交复习题答案
// @Description 根据题目项定位所属复习会话后提交
// @Tags 复习
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param itemId path int true "题目项ID"
// @Param body body service.SubmitAnswerRequest true "答案"
// @Success 200 {object} util.Response{data=service.SubmitItemResult}
// @Router /review/items/{itemId}/submit [post]
func (c *ReviewController) SubmitReviewItem(ctx *gin.Context) {
	user, ok := currentUser(ctx)
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

	result, err := c.Practice.SubmitReviewItem(ctx.Request.Context(), user.UserID, itemID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 手动生成每日复习任务 (管理员)
// @Description runDate 为空时生成当天；已有生成在进行时返回 409
// @Tags 复习
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body generateRequest false "运行日 YYYY-MM-DD"
// @Success 200 {object} util.Response{data=service.GenerateResult}
// @Router /admin/review/daily-tasks/generate [post]
func (c *ReviewController) GenerateDailyTasks(ctx *gin.Context) {
	var req generateRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}
	if req.RunDate == "" {
		req.RunDate = ctx.Query("runDate")
	}

	result, err := c.Daily.Generate(ctx.Request.Context(), req.RunDate)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 每日复习任务概况 (管理员)
// @Tags 复习
// @Produce json
// @Security ApiKeyAuth
// @Param runDate query string false "运行日 YYYY-MM-DD"
// @Success 200 {object} util.Response{data=scheduler.DailySummary}
// @Router /admin/review/daily-tasks/summary [get]
func (c *ReviewController) DailyTaskSummary(ctx *gin.Context) {
	summary, err := c.Daily.Summary(ctx.Request.Context(), ctx.Query("runDate"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, summary)
}
