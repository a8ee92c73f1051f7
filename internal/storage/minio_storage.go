package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"kvision-go/internal/config"
	"kvision-go/internal/msgtypes"
)

// MinioStorageService 实现了 msgtypes.StorageService 接口，
// 将附件保存到 S3 兼容的对象存储（MinIO 或 AWS S3）。
type MinioStorageService struct {
	client *minio.Client
	bucket string
}

// NewMinioStorageService 连接对象存储并确保桶存在。
func NewMinioStorageService(cfg config.S3Config) (msgtypes.StorageService, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化对象存储客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建存储桶失败: %w", err)
		}
	}
	return &MinioStorageService{client: client, bucket: cfg.BucketName}, nil
}

// UploadFile 将文件上传到对象存储，返回带预签名 GET URL 的文件信息。
func (s *MinioStorageService) UploadFile(ctx context.Context, reader io.Reader, fileSize int64, fileName string, mimeType string) (*msgtypes.FileInfo, error) {
	ext := filepath.Ext(fileName)
	if ext == "" {
		extensions, _ := mime.ExtensionsByType(mimeType)
		if len(extensions) > 0 {
			ext = extensions[0]
		}
	}
	objectName := uuid.New().String() + ext

	_, err := s.client.PutObject(ctx, s.bucket, objectName, reader, fileSize,
		minio.PutObjectOptions{ContentType: mimeType})
	if err != nil {
		return nil, fmt.Errorf("上传对象 %s 失败: %w", objectName, err)
	}

	// 预签名 URL 覆盖常见的课件下载场景；过期后可凭 Path 重新签发。
	signedURL, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, 7*24*time.Hour, nil)
	if err != nil {
		return nil, fmt.Errorf("生成对象 %s 的访问 URL 失败: %w", objectName, err)
	}

	return &msgtypes.FileInfo{
		URL:      signedURL.String(),
		Path:     objectName,
		Size:     fileSize,
		MimeType: mimeType,
		FileName: fileName,
	}, nil
}
