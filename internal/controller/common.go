package controller

import (
	"exam_practice_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// currentUser 鉴权中间件之后调用，取不到身份时直接返回 401
func currentUser(ctx *gin.Context) (*util.Claims, bool) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return nil, false
	}
	return user, true
}

// pathID 解析路径中的数字 ID，非法时返回 400
func pathID(ctx *gin.Context, name string) (uint, bool) {
	id := util.MustParseUint(ctx.Param(name))
	if id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return id, true
}

func bindPage(ctx *gin.Context) (util.PageQuery, bool) {
	var page util.PageQuery
	if err := ctx.ShouldBindQuery(&page); err != nil {
		util.BadRequest(ctx, err.Error())
		return page, false
	}
	return page, true
}
