package repository

import (
	"gorm.io/gorm"

	"github.com/CanFlyhang/NovelBot/internal/model"
)

type characterRepository struct {
	db *gorm.DB
}

func NewCharacterRepository(db *gorm.DB) CharacterRepository {
	return &characterRepository{db: db}
}

func (r *characterRepository) Create(character *model.Character) error {
	return r.db.Create(character).Error
}

// ListByNovel 按创建顺序返回人物
func (r *characterRepository) ListByNovel(novelID uint) ([]model.Character, error) {
	var characters []model.Character
	err := r.db.Where("novel_id = ?", novelID).Order("id ASC").Find(&characters).Error
	return characters, err
}

type plotNodeRepository struct {
	db *gorm.DB
}

func NewPlotNodeRepository(db *gorm.DB) PlotNodeRepository {
	return &plotNodeRepository{db: db}
}

func (r *plotNodeRepository) Create(node *model.PlotNode) error {
	return r.db.Create(node).Error
}

// ListByNovel 按节点序号升序返回
func (r *plotNodeRepository) ListByNovel(novelID uint) ([]model.PlotNode, error) {
	var nodes []model.PlotNode
	err := r.db.Where("novel_id = ?", novelID).Order("node_index ASC, id ASC").Find(&nodes).Error
	return nodes, err
}
