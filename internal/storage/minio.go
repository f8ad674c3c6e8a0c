package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/logger"
)

// MinIO 对象存储，保存原始简历文件与提取出的纯文本
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
}

// NewMinIO 创建MinIO客户端并确保bucket存在
func NewMinIO(cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{client: client, cfg: cfg}
	ctx := context.Background()
	for _, bucket := range []string{cfg.ResumeBucket, cfg.TextBucket} {
		if bucket == "" {
			continue
		}
		if err := m.ensureBucketExists(ctx, bucket); err != nil {
			return nil, err
		}
	}

	logger.Info().Str("endpoint", cfg.Endpoint).Msg("成功连接到MinIO")
	return m, nil
}

func (m *MinIO) ensureBucketExists(ctx context.Context, bucketName string) error {
	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查bucket失败 %s: %w", bucketName, err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: m.cfg.Location}); err != nil {
			return fmt.Errorf("创建bucket失败 %s: %w", bucketName, err)
		}
		logger.Info().Str("bucket", bucketName).Msg("已创建MinIO bucket")
	}
	return nil
}

// UploadResumeFile 上传原始简历文件，对象名为 <documentID><ext>
func (m *MinIO) UploadResumeFile(ctx context.Context, documentID, filename string, data []byte, contentType string) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	objectName := documentID + ext
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := m.client.PutObject(ctx, m.cfg.ResumeBucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("上传简历文件失败 %s: %w", objectName, err)
	}
	return path.Join(m.cfg.ResumeBucket, objectName), nil
}

// UploadParsedText 上传提取出的纯文本
func (m *MinIO) UploadParsedText(ctx context.Context, documentID string, text string) (string, error) {
	objectName := documentID + ".txt"
	_, err := m.client.PutObject(ctx, m.cfg.TextBucket, objectName,
		strings.NewReader(text), int64(len(text)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return "", fmt.Errorf("上传解析文本失败 %s: %w", objectName, err)
	}
	return path.Join(m.cfg.TextBucket, objectName), nil
}

// DownloadResumeFile 按存储路径下载原始文件字节
func (m *MinIO) DownloadResumeFile(ctx context.Context, storagePath string) ([]byte, error) {
	bucket, objectName, ok := strings.Cut(storagePath, "/")
	if !ok {
		return nil, fmt.Errorf("非法的存储路径: %s", storagePath)
	}
	obj, err := m.client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("下载文件失败 %s: %w", storagePath, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取文件内容失败 %s: %w", storagePath, err)
	}
	return data, nil
}
