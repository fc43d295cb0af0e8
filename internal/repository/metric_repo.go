package repository

import (
	"gorm.io/gorm"

	"github.com/CanFlyhang/NovelBot/internal/model"
)

type metricRepository struct {
	db *gorm.DB
}

func NewMetricRepository(db *gorm.DB) MetricRepository {
	return &metricRepository{db: db}
}

// AddChapter 不存在当日记录时先创建，再以增量方式累加
func (r *metricRepository) AddChapter(date string, words int, novelStarted bool) error {
	metric := model.GenerationMetric{Date: date}
	if err := r.db.Where(model.GenerationMetric{Date: date}).FirstOrCreate(&metric).Error; err != nil {
		return err
	}

	updates := map[string]interface{}{
		"chapter_count": gorm.Expr("chapter_count + ?", 1),
		"word_count":    gorm.Expr("word_count + ?", words),
	}
	if novelStarted {
		updates["novel_count"] = gorm.Expr("novel_count + ?", 1)
	}
	return r.db.Model(&model.GenerationMetric{}).Where("id = ?", metric.ID).Updates(updates).Error
}

func (r *metricRepository) GetByDate(date string) (*model.GenerationMetric, error) {
	var metric model.GenerationMetric
	if err := r.db.Where("date = ?", date).First(&metric).Error; err != nil {
		return nil, translateError(err)
	}
	return &metric, nil
}

// ListRecent 按日期倒序返回最近的统计
func (r *metricRepository) ListRecent(limit int) ([]model.GenerationMetric, error) {
	var metrics []model.GenerationMetric
	err := r.db.Order("date DESC").Limit(limit).Find(&metrics).Error
	return metrics, err
}

type dailyPlanRepository struct {
	db *gorm.DB
}

func NewDailyPlanRepository(db *gorm.DB) DailyPlanRepository {
	return &dailyPlanRepository{db: db}
}

func (r *dailyPlanRepository) GetByDate(date string) (*model.DailyPlan, error) {
	var plan model.DailyPlan
	if err := r.db.Where("date = ?", date).First(&plan).Error; err != nil {
		return nil, translateError(err)
	}
	return &plan, nil
}

func (r *dailyPlanRepository) Create(plan *model.DailyPlan) error {
	return r.db.Create(plan).Error
}
