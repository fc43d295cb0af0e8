package repository

import (
	"gorm.io/gorm"

	"github.com/CanFlyhang/NovelBot/internal/model"
)

type logRepository struct {
	db *gorm.DB
}

// NewLogRepository 创建创作日志 Repository
func NewLogRepository(db *gorm.DB) LogRepository {
	return &logRepository{db: db}
}

func (r *logRepository) Create(log *model.CreationLog) error {
	return r.db.Create(log).Error
}

// ListRecent 返回最新的若干条日志，新的在前
func (r *logRepository) ListRecent(limit int) ([]model.CreationLog, error) {
	var logs []model.CreationLog
	err := r.db.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

func (r *logRepository) ListByNovel(novelID uint, limit int) ([]model.CreationLog, error) {
	var logs []model.CreationLog
	err := r.db.Where("novel_id = ?", novelID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
