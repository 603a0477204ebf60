package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

// ErrRecordNotFound 分析记录不存在
var ErrRecordNotFound = errors.New("analysis record not found")

// AnalysisRepository 分析记录存储
type AnalysisRepository interface {
	Create(ctx context.Context, record *domain.AnalysisRecord) error
	FindByID(ctx context.Context, id string) (*domain.AnalysisRecord, error)
	List(ctx context.Context, page, pageSize int, status string) ([]*domain.AnalysisRecord, int64, error)
	Delete(ctx context.Context, id string) error
	// DeleteBefore 清理早于指定时间的记录，返回删除的数量
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	GetStatusCounts(ctx context.Context) (map[string]int64, error)
}

type analysisRepo struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewAnalysisRepository(db *gorm.DB, logger *logrus.Logger) AnalysisRepository {
	return &analysisRepo{db: db, logger: logger}
}

func (r *analysisRepo) Create(ctx context.Context, record *domain.AnalysisRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *analysisRepo) FindByID(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	var record domain.AnalysisRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *analysisRepo) List(ctx context.Context, page, pageSize int, status string) ([]*domain.AnalysisRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	filter := func(db *gorm.DB) *gorm.DB {
		if status != "" {
			return db.Where("status = ?", status)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.AnalysisRecord{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []*domain.AnalysisRecord
	err := r.db.WithContext(ctx).
		Scopes(filter).
		Omit("result_json").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *analysisRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&domain.AnalysisRecord{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *analysisRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&domain.AnalysisRecord{})
	if result.Error != nil {
		return 0, result.Error
	}

	if result.RowsAffected > 0 {
		r.logger.WithFields(logrus.Fields{
			"deleted": result.RowsAffected,
			"before":  before.Format(time.RFC3339),
		}).Info("Old analysis records removed")
	}
	return result.RowsAffected, nil
}

func (r *analysisRepo) GetStatusCounts(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.AnalysisRecord{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
