package repository

import (
	"gorm.io/gorm"

	"github.com/CanFlyhang/NovelBot/internal/model"
)

// chapterRepository 实现
type chapterRepository struct {
	db *gorm.DB
}

// NewChapterRepository 创建章节 Repository 实例
func NewChapterRepository(db *gorm.DB) ChapterRepository {
	return &chapterRepository{db: db}
}

// CreateBatch 批量创建章节
func (r *chapterRepository) CreateBatch(chapters []model.Chapter) error {
	if len(chapters) == 0 {
		return nil
	}
	return r.db.Create(&chapters).Error
}

func (r *chapterRepository) Get(id uint) (*model.Chapter, error) {
	var chapter model.Chapter
	if err := r.db.First(&chapter, id).Error; err != nil {
		return nil, translateError(err)
	}
	return &chapter, nil
}

// GetByIndex 根据小说与章节序号获取章节
func (r *chapterRepository) GetByIndex(novelID uint, index int) (*model.Chapter, error) {
	var chapter model.Chapter
	err := r.db.Where("novel_id = ? AND chapter_index = ?", novelID, index).First(&chapter).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &chapter, nil
}

// ListCompletedBefore 返回序号小于 index 的已完成章节，按序号升序
func (r *chapterRepository) ListCompletedBefore(novelID uint, index int) ([]model.Chapter, error) {
	var chapters []model.Chapter
	err := r.db.Where("novel_id = ? AND chapter_index < ? AND status = ?", novelID, index, model.ChapterStatusCompleted).
		Order("chapter_index ASC").
		Find(&chapters).Error
	return chapters, err
}

// ListGenerated 返回已有正文的章节，按序号升序
func (r *chapterRepository) ListGenerated(novelID uint) ([]model.Chapter, error) {
	var chapters []model.Chapter
	err := r.db.Where("novel_id = ? AND content IS NOT NULL", novelID).
		Order("chapter_index ASC").
		Find(&chapters).Error
	return chapters, err
}

// Latest 返回序号最大的已生成章节
func (r *chapterRepository) Latest(novelID uint) (*model.Chapter, error) {
	var chapter model.Chapter
	err := r.db.Where("novel_id = ? AND content IS NOT NULL", novelID).
		Order("chapter_index DESC").
		First(&chapter).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &chapter, nil
}

func (r *chapterRepository) Save(chapter *model.Chapter) error {
	return r.db.Save(chapter).Error
}

// GetStats 统计单本小说的章节数据
func (r *chapterRepository) GetStats(novelID uint) (*ChapterStats, error) {
	return r.stats(r.db.Where("novel_id = ?", novelID))
}

// GetTotals 统计全部小说的章节数据
func (r *chapterRepository) GetTotals() (*ChapterStats, error) {
	return r.stats(r.db)
}

func (r *chapterRepository) stats(scope *gorm.DB) (*ChapterStats, error) {
	var row struct {
		Total     int64
		Completed int64
		Words     int64
	}
	err := scope.Model(&model.Chapter{}).
		Select("COUNT(*) AS total, "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS completed, "+
			"COALESCE(SUM(word_count), 0) AS words", model.ChapterStatusCompleted).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &ChapterStats{Total: row.Total, Completed: row.Completed, Words: row.Words}, nil
}
