// Package es 提供了与 Elasticsearch 交互的客户端功能，作为档案的文档索引后端。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"archive-view-go/internal/archiveerr"
	"archive-view-go/internal/config"
	"archive-view-go/internal/parser"
	"archive-view-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// pageSize 是分页查询每页返回的文档数。
var pageSize = 1000

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(client, esCfg.IndexName)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则按档案字段创建它
func createIndexIfNotExists(client *elasticsearch.Client, indexName string) error {
	res, err := client.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	defer res.Body.Close()
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 关联字段全部使用 keyword，保证 term 查询精确匹配
	mapping := `{
		"mappings": {
			"dynamic_templates": [
				{ "metadata": { "match": "MD_*", "mapping": { "type": "text", "fields": { "raw": { "type": "keyword" } } } } }
			],
			"properties": {
				"IDDOC": { "type": "keyword" },
				"EAD_NODE_ID": { "type": "keyword" },
				"IDDOC_PARENT": { "type": "keyword" },
				"NODE_TYPE": { "type": "keyword" },
				"DESCRIPTION_LEVEL": { "type": "keyword" },
				"DOCTYPE": { "type": "keyword" },
				"ORDER": { "type": "integer" },
				"DATEUPDATED": { "type": "long" },
				"MD_ARCHIVE_ENTRY_ID": { "type": "keyword" },
				"PI_TOPSTRUCT": { "type": "keyword" },
				"BOOL_IMAGEAVAILABLE": { "type": "boolean" }
			}
		}
	}`

	res, err = client.Indices.Create(
		indexName,
		client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// IndexSearcher 在单个索引上执行档案文档查询，实现 parser.IndexBackend。
type IndexSearcher struct {
	client    *elasticsearch.Client
	indexName string
}

// NewIndexSearcher 创建查询器。
func NewIndexSearcher(client *elasticsearch.Client, indexName string) *IndexSearcher {
	return &IndexSearcher{client: client, indexName: indexName}
}

// FindDocuments 返回 field 精确等于 value 的文档。
func (s *IndexSearcher) FindDocuments(ctx context.Context, field, value string) ([]parser.IndexDocument, error) {
	query := map[string]interface{}{
		"term": map[string]interface{}{field: value},
	}
	return s.search(ctx, query)
}

// FindDocumentsWithField 返回含有 field 字段的所有文档。
func (s *IndexSearcher) FindDocumentsWithField(ctx context.Context, field string) ([]parser.IndexDocument, error) {
	query := map[string]interface{}{
		"exists": map[string]interface{}{"field": field},
	}
	return s.search(ctx, query)
}

type searchHit struct {
	ID     string                 `json:"_id"`
	Source map[string]interface{} `json:"_source"`
	Sort   []interface{}          `json:"sort"`
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

// search 按 IDDOC 排序并用 search_after 逐页读取全部命中文档。
// 读到的文档少于命中总数时返回错误，调用方不会得到部分结果。
func (s *IndexSearcher) search(ctx context.Context, query map[string]interface{}) ([]parser.IndexDocument, error) {
	const op = "search index"
	var (
		docs  []parser.IndexDocument
		after []interface{}
		total int
		pages int
	)
	for {
		sr, err := s.searchPage(ctx, query, after)
		if err != nil {
			return nil, err
		}
		if pages == 0 {
			total = sr.Hits.Total.Value
		}
		pages++
		for _, hit := range sr.Hits.Hits {
			docs = append(docs, toDocument(hit))
		}

		n := len(sr.Hits.Hits)
		if n < pageSize {
			break
		}
		after = sr.Hits.Hits[n-1].Sort
		if len(after) == 0 {
			return nil, archiveerr.Newf(archiveerr.KindBackendUnreachable, op, "第 %d 页缺少排序值, 无法继续分页", pages)
		}
	}

	if len(docs) < total {
		return nil, archiveerr.Newf(archiveerr.KindBackendUnreachable, op, "只读取到 %d 个文档, 命中总数为 %d", len(docs), total)
	}
	if pages > 1 {
		log.Debugf("[ES] 分 %d 页读取了 %d 个文档", pages, len(docs))
	}
	return docs, nil
}

func (s *IndexSearcher) searchPage(ctx context.Context, query map[string]interface{}, after []interface{}) (*searchResponse, error) {
	body := map[string]interface{}{
		"query":            query,
		"size":             pageSize,
		"sort":             []interface{}{map[string]interface{}{"IDDOC": "asc"}},
		"track_total_hits": true,
	}
	if len(after) > 0 {
		body["search_after"] = after
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{s.indexName},
		Body:  &buf,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("Elasticsearch 查询返回错误: %s", res.String())
		return nil, fmt.Errorf("elasticsearch returned error: %s", res.Status())
	}

	var sr searchResponse
	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return &sr, nil
}

func toDocument(hit searchHit) parser.IndexDocument {
	doc := parser.IndexDocument{ID: hit.ID, Fields: make(map[string][]string, len(hit.Source))}
	for k, v := range hit.Source {
		if values := stringValues(v); len(values) > 0 {
			doc.Fields[k] = values
		}
	}
	return doc
}

// stringValues 把 _source 中的标量或数组字段转换为字符串列表。
func stringValues(v interface{}) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []interface{}:
		var out []string
		for _, item := range t {
			out = append(out, stringValues(item)...)
		}
		return out
	case string:
		return []string{t}
	case json.Number:
		return []string{t.String()}
	case bool:
		return []string{fmt.Sprint(t)}
	default:
		return []string{fmt.Sprint(t)}
	}
}
