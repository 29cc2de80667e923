// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"docchat-go/internal/config"
	"docchat-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore 把上传的原始文件归档到单个存储桶中。
type ObjectStore struct {
	client *minio.Client
	bucket string
}

// NewObjectStore 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewObjectStore(ctx context.Context, cfg config.MinIOConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
	}
	log.Infof("[MinIO] 存储桶 '%s' 已就绪", cfg.BucketName)
	return &ObjectStore{client: client, bucket: cfg.BucketName}, nil
}

// ObjectKey 返回文件在存储桶中的位置：uploads/<owner>/<file>。
func ObjectKey(ownerID, fileName string) string {
	return path.Join("uploads", ownerID, path.Base(fileName))
}

// Archive 保存原始文件并返回对象 key。同名文件会被覆盖。
func (s *ObjectStore) Archive(ctx context.Context, ownerID, fileName, contentType string, data []byte) (string, error) {
	key := ObjectKey(ownerID, fileName)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("归档文件失败: %w", err)
	}
	return key, nil
}

// Remove 删除指定对象，不存在的对象视为已删除。
func (s *ObjectStore) Remove(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("删除对象 %s 失败: %w", key, err)
		}
	}
	return nil
}
