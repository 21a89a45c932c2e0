package controller

import (
	"exam_practice_backend/internal/model"
	"exam_practice_backend/internal/repository"
	"exam_practice_backend/internal/service"
	"exam_practice_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type PracticeController struct {
	Service *service.PracticeService
}

func NewPracticeController(svc *service.PracticeService) *PracticeController {
	return &PracticeController{Service: svc}
}

// @Summary 创建练习会话
// @Description 按随机/分类/知识点/复习模式抽题
// @Tags 练习
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body service.CreateSessionRequest true "抽题条件"
// @Success 201 {object} util.Response
// @Router /practice/sessions [post]
func (c *PracticeController) CreateSession(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req service.CreateSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	detail, err := c.Service.CreateSession(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, detail)
}

// @Summary 我的练习会话列表
// @Tags 练习
// @Produce json
// @Security ApiKeyAuth
// @Param status query string false "active/completed/abandoned"
// @Param mode query string false "random/category/knowledge/review"
// @Param page query int false "页码"
// @Param pageSize query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResult}
// @Router /practice/sessions [get]
func (c *PracticeController) ListSessions(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	page, ok := bindPage(ctx)
	if !ok {
		return
	}

	result, err := c.Service.ListSessions(ctx.Request.Context(), repository.SessionListFilter{
		StudentID: user.UserID,
		Status:    model.SessionStatus(ctx.Query("status")),
		Mode:      model.PracticeMode(ctx.Query("mode")),
	}, page)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 练习会话详情
// @Description 包含题目列表、总用时和薄弱知识点
// @Tags 练习
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "会话ID"
// @Success 200 {object} util.Response{data=service.SessionDetail}
// @Router /practice/sessions/{id} [get]
func (c *PracticeController) GetSession(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	detail, err := c.Service.GetSession(ctx.Request.Context(), user.UserID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, detail)
}

// @Summary 当前待作答题目
// @Description 没有待作答题目时会话自动完成并返回 null
// @Tags 练习
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "会话ID"
// @Success 200 {object} util.Response{data=service.CurrentItem}
// @Router /practice/sessions/{id}/current [get]
func (c *PracticeController) GetCurrentItem(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	item, err := c.Service.GetCurrentItem(ctx.Request.Context(), user.UserID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, item)
}

// @Summary 提交会话题目答案
// @Tags 练习
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "会话ID"
// @Param itemId path int true "题目项ID"
// @Param body body service.SubmitAnswerRequest true "答案"
// @Success 200 {object} util.Response{data=service.SubmitItemResult}
// @Router /practice/sessions/{id}/items/{itemId}/submit [post]
func (c *PracticeController) SubmitItem(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	sessionID, ok := pathID(ctx, "id")
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

	result, err := c.Service.SubmitItem(ctx.Request.Context(), user.UserID, sessionID, itemID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 结束练习会话
// @Tags 练习
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "会话ID"
// @Success 200 {object} util.Response
// @Router /practice/sessions/{id}/complete [post]
func (c *PracticeController) CompleteSession(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	session, err := c.Service.CompleteSession(ctx.Request.Context(), user.UserID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// @Summary 单题练习提交
// @Description 不属于任何会话的独立作答
// @Tags 练习
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body service.SubmitPracticeRequest true "答案"
// @Success 201 {object} util.Response
// @Router /practice/submit [post]
func (c *PracticeController) SubmitPractice(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req service.SubmitPracticeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	record, err := c.Service.SubmitPractice(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, record)
}
