// Package service 提供了档案资源管理的业务逻辑。
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"archive-view-go/internal/archiveerr"
	"archive-view-go/internal/model"
	"archive-view-go/internal/parser"
	"archive-view-go/internal/repository"
	"archive-view-go/internal/tree"
	"archive-view-go/pkg/log"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// ManagerState 是 ArchiveManager 的状态。
type ManagerState string

const (
	StateNotInitialized     ManagerState = "NOT_INITIALIZED"
	StateResourcesListed    ManagerState = "RESOURCES_LISTED"
	StateTreeLoaded         ManagerState = "TREE_LOADED"
	StateConfigurationError ManagerState = "CONFIGURATION_ERROR"
	StateBackendUnreachable ManagerState = "BACKEND_UNREACHABLE"
	StateInvalidFormat      ManagerState = "INVALID_FORMAT"
)

const listingCacheKey = "listing"

// ArchiveManager 接口定义了档案资源的列出、加载、缓存和导航操作。
type ArchiveManager interface {
	State() ManagerState
	LastError() error
	Resources(ctx context.Context) ([]model.ArchiveResource, error)
	GetTree(ctx context.Context, database, resource string) (*tree.ArchiveTree, error)
	GetHierarchyPath(ctx context.Context, database, resource, id string) ([]*model.ArchiveEntry, error)
	Neighbors(ctx context.Context, database, resource, id string) (prev, next *model.ArchiveEntry, found bool, err error)
	ResolveResourceForExternalID(ctx context.Context, recordPI string) (*model.ArchiveResource, *model.ArchiveEntry, error)
	Reload(ctx context.Context, database, resource string) error
}

// ManagerOptions 是 ArchiveManager 的可选依赖和参数。
type ManagerOptions struct {
	CollapseLevel int
	// ListingTTL 为 0 时每次都向后端重新列出资源。
	ListingTTL time.Duration
	Listings   repository.ListingRepository
	Links      repository.RecordLinkRepository
	// ConfigError 非空时管理器直接进入 CONFIGURATION_ERROR 状态。
	ConfigError error
	Clock       func() time.Time
}

type cachedTree struct {
	tree      *tree.ArchiveTree
	resource  model.ArchiveResource
	buildTime time.Time
}

type archiveManager struct {
	backend       parser.Backend
	collapseLevel int
	listingTTL    time.Duration
	listings      repository.ListingRepository
	links         repository.RecordLinkRepository
	now           func() time.Time

	trees   *cache.Cache
	listing *cache.Cache
	group   singleflight.Group

	mu          sync.RWMutex
	state       ManagerState
	lastErr     error
	lastListing []model.ArchiveResource
}

// NewArchiveManager 创建一个新的 ArchiveManager 实例，并立即尝试列出后端资源。
func NewArchiveManager(ctx context.Context, backend parser.Backend, opts ManagerOptions) ArchiveManager {
	m := &archiveManager{
		backend:       backend,
		collapseLevel: opts.CollapseLevel,
		listingTTL:    opts.ListingTTL,
		listings:      opts.Listings,
		links:         opts.Links,
		now:           opts.Clock,
		trees:         cache.New(cache.NoExpiration, 0),
		listing:       cache.New(cache.NoExpiration, 0),
		state:         StateNotInitialized,
	}
	if m.now == nil {
		m.now = time.Now
	}

	switch {
	case opts.ConfigError != nil:
		m.fail(archiveerr.New(archiveerr.KindConfigurationMissing, "init archive manager", opts.ConfigError))
		return m
	case backend == nil:
		m.fail(archiveerr.Newf(archiveerr.KindConfigurationMissing, "init archive manager", "未配置档案后端"))
		return m
	}

	if resources, err := m.Resources(ctx); err != nil {
		log.Errorf("[ArchiveManager] 初始化时列出资源失败: %v", err)
	} else {
		log.Infof("[ArchiveManager] 初始化完成, 共 %d 个资源", len(resources))
	}
	return m
}

func (m *archiveManager) State() ManagerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *archiveManager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// fail 根据错误类别切换到对应的错误状态，ResourceNotFound 不改变状态。
func (m *archiveManager) fail(err error) {
	var state ManagerState
	switch archiveerr.KindOf(err) {
	case archiveerr.KindConfigurationMissing:
		state = StateConfigurationError
	case archiveerr.KindInvalidFormat:
		state = StateInvalidFormat
	case archiveerr.KindResourceNotFound:
		return
	default:
		state = StateBackendUnreachable
	}
	m.mu.Lock()
	m.state = state
	m.lastErr = err
	m.mu.Unlock()
}

func (m *archiveManager) succeed(state ManagerState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// 已加载过树时，重新列出资源不会让状态回退
	if state == StateResourcesListed && m.state == StateTreeLoaded {
		return
	}
	m.state = state
	m.lastErr = nil
}

// Resources 返回资源列表。依次查找本地缓存、共享缓存和后端；
// 后端失败时返回失败前最后一次成功列出的资源。
func (m *archiveManager) Resources(ctx context.Context) ([]model.ArchiveResource, error) {
	if m.backend == nil {
		return nil, m.LastError()
	}
	if v, ok := m.listing.Get(listingCacheKey); ok {
		return v.([]model.ArchiveResource), nil
	}

	if m.listings != nil && m.listingTTL > 0 {
		resources, found, err := m.listings.Get(ctx)
		switch {
		case err != nil:
			log.Warnf("[ArchiveManager] 读取共享资源列表缓存失败: %v", err)
		case found:
			m.remember(resources)
			return resources, nil
		}
	}

	resources, err := m.backend.ListResources(ctx)
	if err != nil {
		m.fail(err)
		m.mu.RLock()
		last := m.lastListing
		m.mu.RUnlock()
		if last != nil {
			log.Warnf("[ArchiveManager] 列出资源失败, 使用上一次的资源列表: %v", err)
			return last, nil
		}
		return nil, err
	}

	m.remember(resources)
	m.succeed(StateResourcesListed)
	if m.listings != nil && m.listingTTL > 0 {
		if err := m.listings.Save(ctx, resources, m.listingTTL); err != nil {
			log.Warnf("[ArchiveManager] 写入共享资源列表缓存失败: %v", err)
		}
	}
	return resources, nil
}

func (m *archiveManager) remember(resources []model.ArchiveResource) {
	if resources == nil {
		resources = []model.ArchiveResource{}
	}
	m.mu.Lock()
	m.lastListing = resources
	m.mu.Unlock()
	if m.listingTTL > 0 {
		m.listing.Set(listingCacheKey, resources, m.listingTTL)
	}
}

func (m *archiveManager) invalidateListing(ctx context.Context) {
	m.listing.Delete(listingCacheKey)
	if m.listings != nil {
		if err := m.listings.Invalidate(ctx); err != nil {
			log.Warnf("[ArchiveManager] 清除共享资源列表缓存失败: %v", err)
		}
	}
}

// resolve 在资源列表中查找 (database, resource)。
func (m *archiveManager) resolve(ctx context.Context, database, resource string) (model.ArchiveResource, error) {
	resources, err := m.Resources(ctx)
	if err != nil {
		return model.ArchiveResource{}, err
	}
	key := model.ResourceKey{DatabaseName: database, ResourceName: resource}
	for _, r := range resources {
		if r.Key() == key {
			return r, nil
		}
	}
	return model.ArchiveResource{}, archiveerr.Newf(archiveerr.KindResourceNotFound, "resolve resource", "资源 %s 不存在", key)
}

// GetTree 返回资源的树。未缓存或后端修改时间晚于缓存构建时间时重新加载；
// 加载失败但存在旧缓存时返回旧树。
func (m *archiveManager) GetTree(ctx context.Context, database, resource string) (*tree.ArchiveTree, error) {
	res, err := m.resolve(ctx, database, resource)
	if err != nil {
		if cached, ok := m.cached(model.ResourceKey{DatabaseName: database, ResourceName: resource}); ok && !errors.Is(err, archiveerr.ErrResourceNotFound) {
			return cached.tree, nil
		}
		return nil, err
	}

	cached, ok := m.cached(res.Key())
	if ok && !res.LastModified.After(cached.buildTime) {
		return cached.tree, nil
	}
	if ok {
		log.Infof("[ArchiveManager] 资源 %s 已更新 (%s > %s), 重新加载", res.Key(), res.LastModified.Format(time.RFC3339), cached.buildTime.Format(time.RFC3339))
	}

	t, err := m.load(ctx, res)
	if err != nil {
		if ok {
			log.Warnf("[ArchiveManager] 重新加载 %s 失败, 继续使用缓存: %v", res.Key(), err)
			return cached.tree, nil
		}
		return nil, err
	}
	return t, nil
}

func (m *archiveManager) cached(key model.ResourceKey) (*cachedTree, bool) {
	v, ok := m.trees.Get(key.String())
	if !ok {
		return nil, false
	}
	return v.(*cachedTree), true
}

// load 调用解析器并整体替换缓存条目，同一资源的并发加载只执行一次。
func (m *archiveManager) load(ctx context.Context, res model.ArchiveResource) (*tree.ArchiveTree, error) {
	key := res.Key().String()
	v, err, shared := m.group.Do(key, func() (interface{}, error) {
		start := m.now()
		log.Infof("[ArchiveManager] 开始加载资源 %s", key)
		root, err := m.backend.LoadResource(ctx, res)
		if err != nil {
			log.Errorf("[ArchiveManager] 加载资源 %s 失败: %v", key, err)
			m.fail(err)
			return nil, err
		}

		t := tree.NewArchiveTree(m.collapseLevel)
		t.Generate(root)
		m.trees.Set(key, &cachedTree{tree: t, resource: res, buildTime: start}, cache.NoExpiration)
		m.succeed(StateTreeLoaded)
		log.Infof("[ArchiveManager] 资源 %s 加载完成, 共 %d 个节点", key, t.TotalSize())

		m.storeLinks(ctx, res, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debugf("[ArchiveManager] 资源 %s 与并发请求共享了同一次加载", key)
	}
	return v.(*tree.ArchiveTree), nil
}

// storeLinks 记录树中所有关联了数字化记录的节点，失败只记录日志。
func (m *archiveManager) storeLinks(ctx context.Context, res model.ArchiveResource, t *tree.ArchiveTree) {
	if m.links == nil {
		return
	}
	var links []*model.RecordArchiveLink
	for _, e := range t.Root().Flatten(true) {
		if e.AssociatedRecordPI == "" {
			continue
		}
		links = append(links, &model.RecordArchiveLink{
			RecordPI: e.AssociatedRecordPI,
			NodeID:   e.ID,
			HasImage: e.ContainsImage,
		})
	}
	if err := m.links.ReplaceForResource(ctx, res, links); err != nil {
		log.Warnf("[ArchiveManager] 保存资源 %s 的记录关联失败: %v", res.Key(), err)
		return
	}
	log.Infof("[ArchiveManager] 资源 %s 共保存 %d 条记录关联", res.Key(), len(links))
}

// GetHierarchyPath 返回从根到节点的路径；节点不存在时只返回根节点。
func (m *archiveManager) GetHierarchyPath(ctx context.Context, database, resource, id string) ([]*model.ArchiveEntry, error) {
	t, err := m.GetTree(ctx, database, resource)
	if err != nil {
		return nil, err
	}
	if entry, ok := t.EntryByID(id); ok {
		path := entry.Ancestors(true)
		// 父引用是弱引用，缓存被并发替换时树必须存活到路径构建完成
		runtime.KeepAlive(t)
		return path, nil
	}
	if t.Root() == nil {
		return nil, nil
	}
	return []*model.ArchiveEntry{t.Root()}, nil
}

// Neighbors 返回节点在完整先序序列中的前后节点。
func (m *archiveManager) Neighbors(ctx context.Context, database, resource, id string) (*model.ArchiveEntry, *model.ArchiveEntry, bool, error) {
	t, err := m.GetTree(ctx, database, resource)
	if err != nil {
		return nil, nil, false, err
	}
	prev, next, ok := t.Neighbors(id)
	return prev, next, ok, nil
}

// ResolveResourceForExternalID 通过记录关联找到包含该记录的资源并加载它。
// 返回的节点是关联的档案节点，节点已不存在时为树的根节点。
// 关联存储中没有该记录时，依次加载所有资源查找，加载过程会补全关联存储。
func (m *archiveManager) ResolveResourceForExternalID(ctx context.Context, recordPI string) (*model.ArchiveResource, *model.ArchiveEntry, error) {
	const op = "resolve record"
	if m.links == nil {
		return nil, nil, archiveerr.Newf(archiveerr.KindConfigurationMissing, op, "未配置记录关联存储")
	}
	link, found, err := m.links.FindByRecordPI(ctx, recordPI)
	if err != nil {
		return nil, nil, archiveerr.New(archiveerr.KindBackendUnreachable, op, err)
	}
	if !found {
		return m.scanForRecord(ctx, recordPI)
	}

	t, err := m.GetTree(ctx, link.DatabaseName, link.ResourceName)
	if err != nil {
		return nil, nil, err
	}
	res := link.Resource()
	if c, ok := m.cached(res.Key()); ok {
		res = c.resource
	}
	if entry, ok := t.EntryByID(link.NodeID); ok {
		return &res, entry, nil
	}
	return &res, t.Root(), nil
}

// scanForRecord 逐个加载资源，返回第一个关联了 recordPI 的节点。
// 没有找到且有资源加载失败时返回最后一个加载错误。
func (m *archiveManager) scanForRecord(ctx context.Context, recordPI string) (*model.ArchiveResource, *model.ArchiveEntry, error) {
	const op = "resolve record"
	resources, err := m.Resources(ctx)
	if err != nil {
		return nil, nil, err
	}
	log.Infof("[ArchiveManager] 关联存储中没有记录 %s, 在 %d 个资源中查找", recordPI, len(resources))

	var loadErr error
	for _, r := range resources {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		t, err := m.GetTree(ctx, r.DatabaseName, r.ResourceName)
		if err != nil {
			log.Warnf("[ArchiveManager] 查找记录 %s 时加载 %s 失败: %v", recordPI, r.Key(), err)
			loadErr = err
			continue
		}
		if t.Root() == nil {
			continue
		}
		for _, e := range t.Root().Flatten(true) {
			if e.AssociatedRecordPI == recordPI {
				res := r
				return &res, e, nil
			}
		}
	}
	if loadErr != nil {
		return nil, nil, loadErr
	}
	return nil, nil, archiveerr.Newf(archiveerr.KindResourceNotFound, op, "记录 %s 没有关联的档案", recordPI)
}

// Reload 清除资源列表缓存并强制重新加载资源，失败时保留旧缓存并返回错误。
func (m *archiveManager) Reload(ctx context.Context, database, resource string) error {
	if m.backend == nil {
		return m.LastError()
	}
	m.invalidateListing(ctx)
	res, err := m.resolve(ctx, database, resource)
	if err != nil {
		return err
	}
	if _, err := m.load(ctx, res); err != nil {
		return fmt.Errorf("重新加载资源 %s 失败: %w", res.Key(), err)
	}
	return nil
}
