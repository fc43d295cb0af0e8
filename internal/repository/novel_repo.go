package repository

import (
	"gorm.io/gorm"

	"github.com/CanFlyhang/NovelBot/internal/model"
)

type novelRepository struct {
	db *gorm.DB
}

func NewNovelRepository(db *gorm.DB) NovelRepository {
	return &novelRepository{db: db}
}

func (r *novelRepository) Create(novel *model.Novel) error {
	return r.db.Create(novel).Error
}

func (r *novelRepository) Get(id uint) (*model.Novel, error) {
	var novel model.Novel
	if err := r.db.First(&novel, id).Error; err != nil {
		return nil, translateError(err)
	}
	return &novel, nil
}

func (r *novelRepository) List(limit int) ([]model.Novel, error) {
	var novels []model.Novel
	err := r.db.Order("created_at DESC, id DESC").Limit(limit).Find(&novels).Error
	return novels, err
}

func (r *novelRepository) Save(novel *model.Novel) error {
	return r.db.Save(novel).Error
}

func (r *novelRepository) UpdateStatus(id uint, status model.NovelStatus) error {
	result := r.db.Model(&model.Novel{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *novelRepository) AdvanceProgress(id uint, expected, next int, status model.NovelStatus) (bool, error) {
	result := r.db.Model(&model.Novel{}).
		Where("id = ? AND current_chapter_index = ?", id, expected).
		Updates(map[string]interface{}{
			"current_chapter_index": next,
			"status":                status,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *novelRepository) NextDue(statuses []model.NovelStatus, today string) (*model.Novel, error) {
	var novel model.Novel
	err := r.db.Where("status IN ? AND planned_date <= ?", statuses, today).
		Order("planned_date ASC, id ASC").
		First(&novel).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &novel, nil
}

func (r *novelRepository) CountByPlannedDate(date string) (int64, error) {
	var count int64
	err := r.db.Model(&model.Novel{}).Where("planned_date = ?", date).Count(&count).Error
	return count, err
}

func (r *novelRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&model.Novel{}).Count(&count).Error
	return count, err
}

// Delete 删除小说及其章节、人物、情节节点、事实与日志
func (r *novelRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		owned := []any{
			&model.StoryFact{},
			&model.CreationLog{},
			&model.PlotNode{},
			&model.Character{},
			&model.Chapter{},
		}
		for _, m := range owned {
			if err := tx.Where("novel_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		result := tx.Delete(&model.Novel{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
