// Package basex 提供了一个与 BaseX REST 接口交互的客户端，用作 EAD 文档的 XML 数据库后端。
package basex

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"archive-view-go/internal/archiveerr"
	"archive-view-go/internal/config"
	"archive-view-go/internal/model"
	"archive-view-go/pkg/log"
)

const defaultTimeout = 30 * time.Second

// modified-date 可能出现的时间格式
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Client 是 BaseX 服务器的客户端。
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// NewClient 创建一个新的 BaseX 客户端实例。
func NewClient(cfg config.BaseXConfig) (*Client, error) {
	serverURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if serverURL == "" {
		return nil, archiveerr.Newf(archiveerr.KindConfigurationMissing, "new basex client", "未配置 BaseX 地址")
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type databasesXML struct {
	XMLName   xml.Name      `xml:"databases"`
	Databases []databaseXML `xml:"database"`
}

type databaseXML struct {
	Name      string        `xml:"name"`
	Resources []resourceXML `xml:"resources>resource"`
}

type resourceXML struct {
	Name         string `xml:",chardata"`
	ModifiedDate string `xml:"modified-date,attr"`
}

// ListResources 调用 /databases 列出所有数据库中的资源。
func (c *Client) ListResources(ctx context.Context) ([]model.ArchiveResource, error) {
	const op = "list basex resources"
	body, status, err := c.get(ctx, c.serverURL+"/databases")
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackendUnreachable, op, err)
	}
	if status != http.StatusOK {
		return nil, archiveerr.Newf(archiveerr.KindBackendUnreachable, op, "BaseX 返回错误 [%d]: %s", status, truncate(body))
	}

	var listing databasesXML
	if err := xml.Unmarshal(body, &listing); err != nil {
		return nil, archiveerr.New(archiveerr.KindInvalidFormat, op, fmt.Errorf("解析资源列表失败: %w", err))
	}

	var resources []model.ArchiveResource
	for _, db := range listing.Databases {
		dbName := strings.TrimSpace(db.Name)
		for _, r := range db.Resources {
			name := strings.TrimSpace(r.Name)
			if dbName == "" || name == "" {
				continue
			}
			resources = append(resources, model.ArchiveResource{
				DatabaseName: dbName,
				ResourceName: name,
				LastModified: parseModifiedDate(r.ModifiedDate),
			})
		}
	}
	log.Infof("[BaseX] 共列出 %d 个资源", len(resources))
	return resources, nil
}

// FetchDocument 调用 /db/{database}/{resource} 获取 EAD 文档正文。
func (c *Client) FetchDocument(ctx context.Context, resource model.ArchiveResource) ([]byte, error) {
	const op = "fetch basex document"
	u := fmt.Sprintf("%s/db/%s/%s", c.serverURL, url.PathEscape(resource.DatabaseName), escapeResourcePath(resource.ResourceName))
	body, status, err := c.get(ctx, u)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackendUnreachable, op, err)
	}
	switch {
	case status == http.StatusNotFound:
		return nil, archiveerr.Newf(archiveerr.KindResourceNotFound, op, "资源 %s 不存在", resource.Key())
	case status != http.StatusOK:
		return nil, archiveerr.Newf(archiveerr.KindBackendUnreachable, op, "BaseX 返回错误 [%d]: %s", status, truncate(body))
	}
	return body, nil
}

// escapeResourcePath 逐段转义资源路径，保留子目录分隔符。
func escapeResourcePath(name string) string {
	segments := strings.Split(name, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

func (c *Client) get(ctx context.Context, u string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("调用 BaseX 失败: %w", err)
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("读取 BaseX 响应失败: %w", err)
	}
	return buf.Bytes(), resp.StatusCode, nil
}

// parseModifiedDate 解析 modified-date，无法解析时返回零值，资源视为从未更新。
func parseModifiedDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	log.Warnf("[BaseX] 无法解析 modified-date: %q", s)
	return time.Time{}
}

func truncate(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
