// Package storage提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"fmt"
	"lawchat-go/internal/config"
	"lawchat-go/pkg/log"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DraftArchive 把生成的文书草稿归档到 MinIO，便于之后下载或审计。
type DraftArchive struct {
	client *minio.Client
	bucket string
}

// NewDraftArchive 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewDraftArchive(ctx context.Context, cfg config.MinIOConfig) (*DraftArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	// 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	}
	return &DraftArchive{client: client, bucket: cfg.BucketName}, nil
}

// DraftObjectName 生成草稿对象名：drafts/<subject>/<yyyy-mm-dd>/<requestID>-<docType>.md
func DraftObjectName(subjectID, requestID, docType string, at time.Time) string {
	subject := strings.NewReplacer(":", "_", "/", "_").Replace(subjectID)
	if subject == "" {
		subject = "anonymous"
	}
	return fmt.Sprintf("drafts/%s/%s/%s-%s.md", subject, at.UTC().Format("2006-01-02"), requestID, docType)
}

// ArchiveDraft 上传一份草稿，返回对象名。
func (a *DraftArchive) ArchiveDraft(ctx context.Context, subjectID, requestID, docType, content string) (string, error) {
	object := DraftObjectName(subjectID, requestID, docType, time.Now())
	_, err := a.client.PutObject(ctx, a.bucket, object, strings.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: "text/markdown; charset=utf-8",
		UserMetadata: map[string]string{
			"request-id":    requestID,
			"document-type": docType,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload draft: %w", err)
	}
	return object, nil
}

// PresignedURL generates a presigned download URL for an archived draft.
func (a *DraftArchive) PresignedURL(ctx context.Context, object string, expiry time.Duration) (string, error) {
	u, err := a.client.PresignedGetObject(ctx, a.bucket, object, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign draft url: %w", err)
	}
	return u.String(), nil
}
