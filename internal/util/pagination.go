package util

// PageQuery 分页参数，page 从 1 开始
type PageQuery struct {
	Page     int `form:"page" json:"page"`
	PageSize int `form:"pageSize" json:"pageSize"`
}

// Normalize 修正非法分页参数
func (q PageQuery) Normalize() PageQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return q
}

func (q PageQuery) Offset() int {
	n := q.Normalize()
	return (n.Page - 1) * n.PageSize
}

// PageResult 分页响应结构
type PageResult struct {
	Data     interface{} `json:"data"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

func NewPageResult(data interface{}, total int64, q PageQuery) PageResult {
	n := q.Normalize()
	return PageResult{Data: data, Total: total, Page: n.Page, PageSize: n.PageSize}
}
