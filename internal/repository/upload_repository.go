// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"

	"docchat-go/internal/model"

	"gorm.io/gorm"
)

// UploadRepository 接口定义了上传记录的持久化操作。
type UploadRepository interface {
	AutoMigrate() error
	Create(ctx context.Context, record *model.UploadRecord) error
	FindByOwner(ctx context.Context, ownerID string) ([]model.UploadRecord, error)
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
}

// uploadRepository 是 UploadRepository 接口的 GORM 实现，MySQL 和 PostgreSQL 均可使用。
type uploadRepository struct {
	db *gorm.DB
}

// NewUploadRepository 创建一个新的 UploadRepository 实例。
func NewUploadRepository(db *gorm.DB) UploadRepository {
	return &uploadRepository{db: db}
}

func (r *uploadRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&model.UploadRecord{})
}

// Create 在数据库中创建一条上传记录。
func (r *uploadRepository) Create(ctx context.Context, record *model.UploadRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// FindByOwner 按上传时间倒序返回用户的上传记录。
func (r *uploadRepository) FindByOwner(ctx context.Context, ownerID string) ([]model.UploadRecord, error) {
	var records []model.UploadRecord
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&records).Error
	return records, err
}

// DeleteByOwner 删除用户的全部上传记录。
func (r *uploadRepository) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Delete(&model.UploadRecord{})
	return res.RowsAffected, res.Error
}
