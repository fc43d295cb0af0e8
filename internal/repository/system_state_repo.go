package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/CanFlyhang/NovelBot/internal/model"
)

type systemStateRepository struct {
	db *gorm.DB
}

// NewSystemStateRepository 创建系统状态 Repository
func NewSystemStateRepository(db *gorm.DB) SystemStateRepository {
	return &systemStateRepository{db: db}
}

// Get 读取状态值，键不存在时返回 ErrNotFound
func (r *systemStateRepository) Get(key string) (string, error) {
	var state model.SystemState
	if err := r.db.Where("state_key = ?", key).First(&state).Error; err != nil {
		return "", translateError(err)
	}
	return state.Value, nil
}

// Set 写入状态值，键已存在时覆盖
func (r *systemStateRepository) Set(key, value string) error {
	state := model.SystemState{Key: key, Value: value}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "state_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&state).Error
}
