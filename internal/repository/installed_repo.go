package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

// InstalledPackageRepository 已安装包快照
type InstalledPackageRepository interface {
	// Find 未找到时返回 nil, nil
	Find(ctx context.Context, packageName string) (*domain.InstalledPackage, error)
	List(ctx context.Context) ([]*domain.InstalledPackage, error)
	// Replace 用新的快照整体替换旧数据
	Replace(ctx context.Context, packages []*domain.InstalledPackage) error
	Upsert(ctx context.Context, pkg *domain.InstalledPackage) error
}

type installedRepo struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewInstalledPackageRepository(db *gorm.DB, logger *logrus.Logger) InstalledPackageRepository {
	return &installedRepo{db: db, logger: logger}
}

func (r *installedRepo) Find(ctx context.Context, packageName string) (*domain.InstalledPackage, error) {
	var pkg domain.InstalledPackage
	err := r.db.WithContext(ctx).First(&pkg, "package_name = ?", packageName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *installedRepo) List(ctx context.Context) ([]*domain.InstalledPackage, error) {
	var packages []*domain.InstalledPackage
	err := r.db.WithContext(ctx).Order("package_name").Find(&packages).Error
	return packages, err
}

func (r *installedRepo) Replace(ctx context.Context, packages []*domain.InstalledPackage) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.InstalledPackage{}).Error; err != nil {
			return err
		}
		if len(packages) == 0 {
			return nil
		}
		for _, p := range packages {
			p.UpdatedAt = now
		}
		return tx.CreateInBatches(packages, 200).Error
	})
	if err != nil {
		return err
	}

	r.logger.WithField("count", len(packages)).Info("Installed package snapshot replaced")
	return nil
}

func (r *installedRepo) Upsert(ctx context.Context, pkg *domain.InstalledPackage) error {
	pkg.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "package_name"}},
		UpdateAll: true,
	}).Create(pkg).Error
}
