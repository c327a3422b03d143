// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"archive-view-go/internal/archiveerr"
	"archive-view-go/internal/model"
	"archive-view-go/internal/service"
	"archive-view-go/internal/tree"
	"archive-view-go/pkg/log"
	"archive-view-go/pkg/tasks"

	"github.com/gin-gonic/gin"
)

// EnqueueFunc 把重新加载任务投递到异步队列。
type EnqueueFunc func(ctx context.Context, task tasks.ArchiveReloadTask) error

// ArchiveHandler 负责处理所有与档案树相关的 API 请求。
type ArchiveHandler struct {
	manager service.ArchiveManager
	enqueue EnqueueFunc
	// 树视图的展开、折叠和搜索状态是共享的：修改视图时独占，读取节点时共享
	viewMu sync.RWMutex
}

// NewArchiveHandler 创建一个新的 ArchiveHandler 实例。enqueue 为 nil 时重新加载同步执行。
func NewArchiveHandler(manager service.ArchiveManager, enqueue EnqueueFunc) *ArchiveHandler {
	return &ArchiveHandler{manager: manager, enqueue: enqueue}
}

// RegisterRoutes 在给定路由组下注册档案相关路由。
func (h *ArchiveHandler) RegisterRoutes(rg *gin.RouterGroup) {
	archives := rg.Group("/archives")
	{
		archives.GET("", h.ListResources)
		resource := archives.Group("/:database/:resource")
		{
			resource.GET("/tree", h.GetTree)
			resource.POST("/expand-all", h.ExpandAll)
			resource.POST("/collapse-all", h.CollapseAll)
			resource.POST("/reload", h.Reload)
			resource.GET("/entries/:id", h.GetEntry)
			resource.GET("/entries/:id/path", h.GetHierarchyPath)
			resource.GET("/entries/:id/neighbors", h.GetNeighbors)
			resource.POST("/entries/:id/expand", h.ExpandEntry)
			resource.POST("/entries/:id/collapse", h.CollapseEntry)
		}
	}
	rg.GET("/records/:pi/archive", h.ResolveRecord)
}

// entryResponse 是节点及其按区域分组的元数据。
type entryResponse struct {
	*model.ArchiveEntry
	ParentID   string                           `json:"parentId,omitempty"`
	ChildCount int                              `json:"childCount"`
	Metadata   map[string][]model.MetadataField `json:"metadata,omitempty"`
}

func toEntryResponse(e *model.ArchiveEntry, withMetadata bool) *entryResponse {
	if e == nil {
		return nil
	}
	resp := &entryResponse{ArchiveEntry: e, ChildCount: len(e.Children())}
	if p := e.Parent(); p != nil {
		resp.ParentID = p.ID
	}
	if withMetadata {
		resp.Metadata = e.MetadataByArea()
	}
	return resp
}

func toEntryResponses(entries []*model.ArchiveEntry) []*entryResponse {
	out := make([]*entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e, false))
	}
	return out
}

// ListResources 返回资源列表和管理器状态。
func (h *ArchiveHandler) ListResources(c *gin.Context) {
	resources, err := h.manager.Resources(c.Request.Context())
	if err != nil {
		h.fail(c, "列出档案资源失败", err)
		return
	}
	data := gin.H{
		"state":     h.manager.State(),
		"resources": resources,
	}
	if lastErr := h.manager.LastError(); lastErr != nil {
		data["lastError"] = lastErr.Error()
	}
	success(c, "获取档案资源列表成功", data)
}

// GetTree 返回资源的可见节点；带 search 参数时先执行搜索，search 为空时清除搜索。
func (h *ArchiveHandler) GetTree(c *gin.Context) {
	t, ok := h.tree(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "0"))

	h.viewMu.Lock()
	defer h.viewMu.Unlock()
	if term, present := c.GetQuery("search"); present {
		hits := t.Search(term)
		log.Infof("[ArchiveHandler] 搜索 '%s' 命中 %d 个节点", term, len(hits))
	}
	entries, totalPages := t.Page(page, size)
	success(c, "获取档案树成功", gin.H{
		"searchTerm":    t.SearchTerm(),
		"collapseLevel": t.CollapseLevel(),
		"maxDepth":      t.MaxDepth(),
		"totalSize":     t.TotalSize(),
		"page":          page,
		"totalPages":    totalPages,
		"entries":       toEntryResponses(entries),
	})
}

// GetEntry 返回单个节点及其元数据。
func (h *ArchiveHandler) GetEntry(c *gin.Context) {
	t, ok := h.tree(c)
	if !ok {
		return
	}
	h.viewMu.RLock()
	defer h.viewMu.RUnlock()
	entry, found := t.EntryByID(c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "节点不存在", "data": nil})
		return
	}
	success(c, "获取节点成功", toEntryResponse(entry, true))
}

// GetHierarchyPath 返回从根到节点的路径，节点不存在时只包含根节点。
func (h *ArchiveHandler) GetHierarchyPath(c *gin.Context) {
	h.viewMu.RLock()
	defer h.viewMu.RUnlock()
	path, err := h.manager.GetHierarchyPath(c.Request.Context(), c.Param("database"), c.Param("resource"), c.Param("id"))
	if err != nil {
		h.fail(c, "获取层级路径失败", err)
		return
	}
	success(c, "获取层级路径成功", toEntryResponses(path))
}

// GetNeighbors 返回节点的前后节点。
func (h *ArchiveHandler) GetNeighbors(c *gin.Context) {
	h.viewMu.RLock()
	defer h.viewMu.RUnlock()
	prev, next, found, err := h.manager.Neighbors(c.Request.Context(), c.Param("database"), c.Param("resource"), c.Param("id"))
	if err != nil {
		h.fail(c, "获取相邻节点失败", err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "节点不存在", "data": nil})
		return
	}
	success(c, "获取相邻节点成功", gin.H{
		"previous": toEntryResponse(prev, false),
		"next":     toEntryResponse(next, false),
	})
}

// ExpandEntry 展开节点。
func (h *ArchiveHandler) ExpandEntry(c *gin.Context) {
	h.toggle(c, (*tree.ArchiveTree).Expand, "展开节点成功")
}

// CollapseEntry 折叠节点。
func (h *ArchiveHandler) CollapseEntry(c *gin.Context) {
	h.toggle(c, (*tree.ArchiveTree).Collapse, "折叠节点成功")
}

func (h *ArchiveHandler) toggle(c *gin.Context, op func(*tree.ArchiveTree, string) bool, message string) {
	t, ok := h.tree(c)
	if !ok {
		return
	}
	h.viewMu.Lock()
	defer h.viewMu.Unlock()
	if !op(t, c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "节点不存在", "data": nil})
		return
	}
	entry, _ := t.EntryByID(c.Param("id"))
	success(c, message, toEntryResponse(entry, false))
}

// ExpandAll 展开所有节点。
func (h *ArchiveHandler) ExpandAll(c *gin.Context) {
	t, ok := h.tree(c)
	if !ok {
		return
	}
	h.viewMu.Lock()
	t.ExpandAll()
	h.viewMu.Unlock()
	success(c, "全部展开成功", nil)
}

// CollapseAll 折叠所有节点，all=true 时连根节点也折叠。
func (h *ArchiveHandler) CollapseAll(c *gin.Context) {
	t, ok := h.tree(c)
	if !ok {
		return
	}
	all, _ := strconv.ParseBool(c.DefaultQuery("all", "false"))
	h.viewMu.Lock()
	t.CollapseAll(all)
	h.viewMu.Unlock()
	success(c, "全部折叠成功", nil)
}

// Reload 请求重新加载资源。配置了队列时异步执行并返回 202。
func (h *ArchiveHandler) Reload(c *gin.Context) {
	database, resource := c.Param("database"), c.Param("resource")
	ctx := c.Request.Context()
	if h.enqueue != nil {
		task := tasks.ArchiveReloadTask{DatabaseName: database, ResourceName: resource, RequestedAt: time.Now()}
		if err := h.enqueue(ctx, task); err != nil {
			log.Errorf("[ArchiveHandler] 投递重新加载任务失败: %s, Error: %v", task.Key(), err)
			c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "投递重新加载任务失败", "data": nil})
			return
		}
		log.Infof("[ArchiveHandler] 已投递重新加载任务: %s", task.Key())
		c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "重新加载任务已提交", "data": task})
		return
	}

	if err := h.manager.Reload(ctx, database, resource); err != nil {
		h.fail(c, "重新加载资源失败", err)
		return
	}
	success(c, "重新加载资源成功", gin.H{"state": h.manager.State()})
}

// ResolveRecord 通过记录标识找到关联的档案资源和节点。
func (h *ArchiveHandler) ResolveRecord(c *gin.Context) {
	h.viewMu.RLock()
	defer h.viewMu.RUnlock()
	res, entry, err := h.manager.ResolveResourceForExternalID(c.Request.Context(), c.Param("pi"))
	if err != nil {
		h.fail(c, "解析记录关联失败", err)
		return
	}
	success(c, "解析记录关联成功", gin.H{
		"resource": res,
		"entry":    toEntryResponse(entry, false),
	})
}

func (h *ArchiveHandler) tree(c *gin.Context) (*tree.ArchiveTree, bool) {
	t, err := h.manager.GetTree(c.Request.Context(), c.Param("database"), c.Param("resource"))
	if err != nil {
		h.fail(c, "获取档案树失败", err)
		return nil, false
	}
	return t, true
}

func (h *ArchiveHandler) fail(c *gin.Context, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("[ArchiveHandler] %s, path: %s, error: %v", message, c.Request.URL.Path, err)
	} else {
		log.Warnf("[ArchiveHandler] %s, path: %s, error: %v", message, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"code": status, "message": message + ": " + err.Error(), "data": nil})
}

// statusFor 把错误类别映射为 HTTP 状态码。
func statusFor(err error) int {
	switch archiveerr.KindOf(err) {
	case archiveerr.KindResourceNotFound:
		return http.StatusNotFound
	case archiveerr.KindBackendUnreachable:
		return http.StatusBadGateway
	case archiveerr.KindInvalidFormat:
		return http.StatusUnprocessableEntity
	case archiveerr.KindConfigurationMissing:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    data,
	})
}
