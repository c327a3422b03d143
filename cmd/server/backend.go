package main

import (
	"fmt"
	"strings"

	"archive-view-go/internal/archiveerr"
	"archive-view-go/internal/config"
	"archive-view-go/internal/parser"
	"archive-view-go/pkg/basex"
	"archive-view-go/pkg/es"
	"archive-view-go/pkg/log"
	"archive-view-go/pkg/storage"
)

// buildBackend 根据 archives.backend 组装解析器。
// XML 类后端在配置了 Elasticsearch 时从索引读取记录关联。
func buildBackend(cfg *config.Config) (parser.Backend, error) {
	const op = "build backend"
	templates, err := cfg.Archives.FieldTemplates()
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindConfigurationMissing, op, err)
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Archives.Backend))
	if backend == config.BackendIndex {
		searcher, err := indexSearcher(cfg.Elasticsearch)
		if err != nil {
			return nil, err
		}
		if searcher == nil {
			return nil, archiveerr.Newf(archiveerr.KindConfigurationMissing, op, "index 后端需要配置 elasticsearch.addresses")
		}
		return parser.NewIndexParser(searcher, cfg.Archives.Index.DatabaseName, templates)
	}

	var source parser.DocumentSource
	switch backend {
	case config.BackendBaseX:
		source, err = basex.NewClient(cfg.Archives.BaseX)
	case config.BackendMinIO:
		storage.InitMinIO(cfg.MinIO)
		source, err = storage.NewObjectSource(storage.MinioClient, cfg.MinIO.BucketName)
	case config.BackendFile:
		source, err = parser.NewFileSource(cfg.Archives.File.Directory)
	default:
		return nil, archiveerr.Newf(archiveerr.KindConfigurationMissing, op, "未知的档案后端 %q", cfg.Archives.Backend)
	}
	if err != nil {
		return nil, err
	}

	var opts []parser.XMLOption
	searcher, err := indexSearcher(cfg.Elasticsearch)
	if err != nil {
		log.Warnf("[Server] Elasticsearch 不可用, 不读取记录关联: %v", err)
	} else if searcher != nil {
		opts = append(opts, parser.WithAssociationBackend(searcher))
	}
	log.Infof("[Server] 使用 %s 后端", backend)
	return parser.NewXMLDatabaseParser(source, templates, opts...)
}

// indexSearcher 在配置了地址时初始化 Elasticsearch，未配置时返回 nil。
func indexSearcher(cfg config.ElasticsearchConfig) (*es.IndexSearcher, error) {
	if strings.TrimSpace(cfg.Addresses) == "" {
		return nil, nil
	}
	if es.ESClient == nil {
		if err := es.InitES(cfg); err != nil {
			return nil, archiveerr.New(archiveerr.KindBackendUnreachable, "init elasticsearch", fmt.Errorf("es 初始化失败: %w", err))
		}
	}
	return es.NewIndexSearcher(es.ESClient, cfg.IndexName), nil
}
