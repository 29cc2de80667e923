package model

import "time"

// UploadRecord 记录一次成功入库的上传，以及原始文件在对象存储中的位置。
// 清空文档时据此删除归档对象。
type UploadRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID    string    `gorm:"type:varchar(255);not null;index" json:"ownerId"`
	FileName   string    `gorm:"type:varchar(255);not null" json:"fileName"`
	FileType   string    `gorm:"type:varchar(16);not null" json:"fileType"`
	Size       int64     `gorm:"not null" json:"size"`
	ObjectKey  string    `gorm:"type:varchar(512)" json:"objectKey"`
	ChunkCount int       `gorm:"not null" json:"chunkCount"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (UploadRecord) TableName() string {
	return "upload_records"
}
