package parser

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"archive-view-go/internal/archiveerr"
	"archive-view-go/internal/model"
)

// FileSource 以本地目录作为 XML 数据库：子目录是数据库，其中的 *.xml 文件是资源。
type FileSource struct {
	dir string
}

// NewFileSource 创建本地目录数据源。
func NewFileSource(dir string) (*FileSource, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, archiveerr.Newf(archiveerr.KindConfigurationMissing, "new file source", "未配置目录")
	}
	return &FileSource{dir: dir}, nil
}

// ListResources 遍历目录，资源按数据库名和资源名排序。
func (s *FileSource) ListResources(ctx context.Context) ([]model.ArchiveResource, error) {
	const op = "list file resources"
	dbs, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackendUnreachable, op, err)
	}

	var resources []model.ArchiveResource
	for _, db := range dbs {
		if !db.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, err := os.ReadDir(filepath.Join(s.dir, db.Name()))
		if err != nil {
			return nil, archiveerr.New(archiveerr.KindBackendUnreachable, op, err)
		}
		for _, f := range files {
			if f.IsDir() || !strings.EqualFold(filepath.Ext(f.Name()), ".xml") {
				continue
			}
			info, err := f.Info()
			if err != nil {
				return nil, archiveerr.New(archiveerr.KindBackendUnreachable, op, err)
			}
			resources = append(resources, model.ArchiveResource{
				DatabaseName: db.Name(),
				ResourceName: f.Name(),
				LastModified: info.ModTime(),
			})
		}
	}
	sort.Slice(resources, func(i, j int) bool {
		return resources[i].Key().String() < resources[j].Key().String()
	})
	return resources, nil
}

// FetchDocument 读取资源文件。
func (s *FileSource) FetchDocument(_ context.Context, resource model.ArchiveResource) ([]byte, error) {
	const op = "fetch file document"
	path, err := s.resolve(resource)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindResourceNotFound, op, err)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, archiveerr.New(archiveerr.KindResourceNotFound, op, err)
	}
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackendUnreachable, op, err)
	}
	return data, nil
}

// resolve 拒绝跳出根目录的路径。
func (s *FileSource) resolve(resource model.ArchiveResource) (string, error) {
	for _, part := range []string{resource.DatabaseName, resource.ResourceName} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("非法的资源路径 %q", resource.Key())
		}
	}
	return filepath.Join(s.dir, resource.DatabaseName, resource.ResourceName), nil
}
