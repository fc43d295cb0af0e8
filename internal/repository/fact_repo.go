package repository

import (
	"gorm.io/gorm"

	"github.com/CanFlyhang/NovelBot/internal/model"
)

type factRepository struct {
	db *gorm.DB
}

// NewFactRepository 创建事实账本 Repository
func NewFactRepository(db *gorm.DB) FactRepository {
	return &factRepository{db: db}
}

func (r *factRepository) CreateBatch(facts []model.StoryFact) error {
	if len(facts) == 0 {
		return nil
	}
	return r.db.Create(&facts).Error
}

// ListBefore 返回章节序号小于 chapterIndex 的事实，按章节序号升序、同章按写入顺序
func (r *factRepository) ListBefore(novelID uint, chapterIndex int) ([]model.StoryFact, error) {
	var facts []model.StoryFact
	err := r.db.Where("novel_id = ? AND chapter_index < ?", novelID, chapterIndex).
		Order("chapter_index ASC, id ASC").
		Find(&facts).Error
	return facts, err
}

func (r *factRepository) ListByNovel(novelID uint) ([]model.StoryFact, error) {
	var facts []model.StoryFact
	err := r.db.Where("novel_id = ?", novelID).
		Order("chapter_index ASC, id ASC").
		Find(&facts).Error
	return facts, err
}
