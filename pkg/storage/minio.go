// Package storage提供了与对象存储服务（如 MinIO）交互的功能，用于存放 EAD 文档。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"archive-view-go/internal/archiveerr"
	"archive-view-go/internal/config"
	"archive-view-go/internal/model"
	"archive-view-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	// 1. 初始化 MinIO 客户端
	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	// 2. 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	ctx := context.Background()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		err = MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
}

// ObjectSource 把存储桶当作 XML 数据库：对象键为 <database>/<resource>。
type ObjectSource struct {
	client *minio.Client
	bucket string
}

// NewObjectSource 创建对象存储数据源。
func NewObjectSource(client *minio.Client, bucket string) (*ObjectSource, error) {
	if client == nil || strings.TrimSpace(bucket) == "" {
		return nil, archiveerr.Newf(archiveerr.KindConfigurationMissing, "new object source", "未配置 MinIO 客户端或存储桶")
	}
	return &ObjectSource{client: client, bucket: bucket}, nil
}

// ListResources 列出存储桶中所有两级对象键。
func (s *ObjectSource) ListResources(ctx context.Context) ([]model.ArchiveResource, error) {
	var resources []model.ArchiveResource
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, archiveerr.New(archiveerr.KindBackendUnreachable, "list object resources", obj.Err)
		}
		database, resource, ok := SplitObjectKey(obj.Key)
		if !ok {
			continue
		}
		resources = append(resources, model.ArchiveResource{
			DatabaseName: database,
			ResourceName: resource,
			LastModified: obj.LastModified,
		})
	}
	log.Infof("[ObjectSource] 存储桶 '%s' 中共列出 %d 个资源", s.bucket, len(resources))
	return resources, nil
}

// FetchDocument 下载资源对象。
func (s *ObjectSource) FetchDocument(ctx context.Context, resource model.ArchiveResource) ([]byte, error) {
	const op = "fetch object document"
	key := ObjectKey(resource)
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, objectError(op, key, err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(object); err != nil {
		return nil, objectError(op, key, err)
	}
	return buf.Bytes(), nil
}

func objectError(op, key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return archiveerr.Newf(archiveerr.KindResourceNotFound, op, "对象 %s 不存在", key)
	}
	return archiveerr.New(archiveerr.KindBackendUnreachable, op, fmt.Errorf("读取对象 %s 失败: %w", key, err))
}

// ObjectKey 返回资源对应的对象键。
func ObjectKey(resource model.ArchiveResource) string {
	return resource.DatabaseName + "/" + resource.ResourceName
}

// SplitObjectKey 将对象键拆分为数据库名和资源名，只接受两级且以 .xml 结尾的键。
func SplitObjectKey(key string) (database, resource string, ok bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	if !strings.HasSuffix(strings.ToLower(parts[1]), ".xml") {
		return "", "", false
	}
	return parts[0], parts[1], true
}
