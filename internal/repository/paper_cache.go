package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"exam_practice_backend/internal/model"

	"github.com/go-redis/redis/v8"
)

// PaperCache 已发布试卷不可变，详情可长期缓存；rdb 为空时所有操作都是空操作
type PaperCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPaperCache(rdb *redis.Client, ttl time.Duration) *PaperCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &PaperCache{rdb: rdb, ttl: ttl}
}

func paperKey(id uint) string {
	return fmt.Sprintf("exam:paper:%d", id)
}

func (c *PaperCache) Get(ctx context.Context, id uint) (*model.ExamPaper, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, paperKey(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var p model.ExamPaper
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	return &p, true
}

// Set 只缓存已发布的试卷
func (c *PaperCache) Set(ctx context.Context, p *model.ExamPaper) error {
	if c == nil || c.rdb == nil || p.Status != model.PaperPublished {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, paperKey(p.ID), raw, c.ttl).Err()
}
