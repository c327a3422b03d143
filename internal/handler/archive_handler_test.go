package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"archive-view-go/internal/archiveerr"
	"archive-view-go/internal/model"
	"archive-view-go/internal/service"
	"archive-view-go/pkg/tasks"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	listErr error
	loadErr error
	loads   int
}

func (s *stubBackend) ListResources(context.Context) ([]model.ArchiveResource, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return []model.ArchiveResource{{DatabaseName: "archives", ResourceName: "fonds.xml", LastModified: time.Unix(0, 0)}}, nil
}

func (s *stubBackend) LoadResource(context.Context, model.ArchiveResource) (*model.ArchiveEntry, error) {
	s.loads++
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	root := model.NewArchiveEntry(0, 0)
	root.ID, root.Label = "root", "Bestand"
	root.AddMetadata(model.MetadataField{Label: "unittitle", Area: model.AreaIdentityStatement, Value: "Bestand"})
	for i, id := range []string{"s1", "s2"} {
		series := model.NewArchiveEntry(i, 1)
		series.ID, series.Label = id, "Serie "+id
		file := model.NewArchiveEntry(0, 2)
		file.ID, file.Label = id+"-f", "Akte "+id
		series.AddChild(file)
		root.AddChild(series)
	}
	return root, nil
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setupRouter(t *testing.T, backend *stubBackend, enqueue EnqueueFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	manager := service.NewArchiveManager(context.Background(), backend, service.ManagerOptions{CollapseLevel: 1})
	r := gin.New()
	NewArchiveHandler(manager, enqueue).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func perform(t *testing.T, r *gin.Engine, method, path string) (int, apiResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func TestListResources(t *testing.T) {
	r := setupRouter(t, &stubBackend{}, nil)
	code, resp := perform(t, r, http.MethodGet, "/api/v1/archives")
	require.Equal(t, http.StatusOK, code)

	var data struct {
		State     string                  `json:"state"`
		Resources []model.ArchiveResource `json:"resources"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "RESOURCES_LISTED", data.State)
	require.Len(t, data.Resources, 1)
	assert.Equal(t, "fonds.xml", data.Resources[0].ResourceName)
}

type treeData struct {
	SearchTerm string `json:"searchTerm"`
	TotalSize  int    `json:"totalSize"`
	Entries    []struct {
		ID       string `json:"id"`
		ParentID string `json:"parentId"`
	} `json:"entries"`
}

func (d treeData) ids() []string {
	var out []string
	for _, e := range d.Entries {
		out = append(out, e.ID)
	}
	return out
}

func TestTreeAndExpansion(t *testing.T) {
	r := setupRouter(t, &stubBackend{}, nil)
	base := "/api/v1/archives/archives/fonds.xml"

	code, resp := perform(t, r, http.MethodGet, base+"/tree")
	require.Equal(t, http.StatusOK, code)
	var data treeData
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, 5, data.TotalSize)
	assert.Equal(t, []string{"root", "s1", "s2"}, data.ids())

	code, _ = perform(t, r, http.MethodPost, base+"/entries/s1/expand")
	require.Equal(t, http.StatusOK, code)
	_, resp = perform(t, r, http.MethodGet, base+"/tree")
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, []string{"root", "s1", "s1-f", "s2"}, data.ids())

	code, _ = perform(t, r, http.MethodPost, base+"/entries/nope/expand")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = perform(t, r, http.MethodPost, base+"/expand-all")
	require.Equal(t, http.StatusOK, code)
	_, resp = perform(t, r, http.MethodGet, base+"/tree")
	data = treeData{}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Len(t, data.Entries, 5)

	code, _ = perform(t, r, http.MethodPost, base+"/collapse-all?all=true")
	require.Equal(t, http.StatusOK, code)
	_, resp = perform(t, r, http.MethodGet, base+"/tree")
	data = treeData{}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, []string{"root"}, data.ids())
}

func TestTreeSearch(t *testing.T) {
	r := setupRouter(t, &stubBackend{}, nil)
	base := "/api/v1/archives/archives/fonds.xml"

	_, resp := perform(t, r, http.MethodGet, base+"/tree?search=Akte%20s2")
	var data treeData
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "Akte s2", data.SearchTerm)
	assert.Equal(t, []string{"root", "s2", "s2-f"}, data.ids())

	_, resp = perform(t, r, http.MethodGet, base+"/tree?search=")
	data = treeData{}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Empty(t, data.SearchTerm)
}

func TestEntryEndpoints(t *testing.T) {
	r := setupRouter(t, &stubBackend{}, nil)
	base := "/api/v1/archives/archives/fonds.xml"

	code, resp := perform(t, r, http.MethodGet, base+"/entries/root")
	require.Equal(t, http.StatusOK, code)
	var entry struct {
		ID         string                           `json:"id"`
		ChildCount int                              `json:"childCount"`
		Metadata   map[string][]model.MetadataField `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &entry))
	assert.Equal(t, 2, entry.ChildCount)
	assert.NotEmpty(t, entry.Metadata)

	code, _ = perform(t, r, http.MethodGet, base+"/entries/missing")
	assert.Equal(t, http.StatusNotFound, code)

	code, resp = perform(t, r, http.MethodGet, base+"/entries/s2-f/path")
	require.Equal(t, http.StatusOK, code)
	var path []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &path))
	require.Len(t, path, 3)
	assert.Equal(t, "s2-f", path[2].ID)

	code, resp = perform(t, r, http.MethodGet, base+"/entries/s1-f/neighbors")
	require.Equal(t, http.StatusOK, code)
	var neighbors struct {
		Previous struct{ ID string } `json:"previous"`
		Next     struct{ ID string } `json:"next"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &neighbors))
	assert.Equal(t, "s1", neighbors.Previous.ID)
	assert.Equal(t, "s2", neighbors.Next.ID)
}

func TestConcurrentSearchAndReads(t *testing.T) {
	r := setupRouter(t, &stubBackend{}, nil)
	base := "/api/v1/archives/archives/fonds.xml"
	code, _ := perform(t, r, http.MethodGet, base+"/tree")
	require.Equal(t, http.StatusOK, code)

	serve := func(path string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w.Code
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			assert.Equal(t, http.StatusOK, serve(base+"/tree?search=Akte"))
			assert.Equal(t, http.StatusOK, serve(base+"/tree?search="))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			assert.Equal(t, http.StatusOK, serve(base+"/entries/s1-f/neighbors"))
			assert.Equal(t, http.StatusOK, serve(base+"/entries/s2-f/path"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			assert.Equal(t, http.StatusOK, serve(base+"/entries/s2"))
		}
	}()
	wg.Wait()
}

func TestErrorStatusMapping(t *testing.T) {
	t.Run("unknown resource", func(t *testing.T) {
		r := setupRouter(t, &stubBackend{}, nil)
		code, resp := perform(t, r, http.MethodGet, "/api/v1/archives/archives/missing.xml/tree")
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("backend unreachable", func(t *testing.T) {
		r := setupRouter(t, &stubBackend{listErr: archiveerr.Newf(archiveerr.KindBackendUnreachable, "list", "down")}, nil)
		code, _ := perform(t, r, http.MethodGet, "/api/v1/archives")
		assert.Equal(t, http.StatusBadGateway, code)
	})

	t.Run("invalid format", func(t *testing.T) {
		r := setupRouter(t, &stubBackend{loadErr: archiveerr.Newf(archiveerr.KindInvalidFormat, "parse", "broken")}, nil)
		code, _ := perform(t, r, http.MethodGet, "/api/v1/archives/archives/fonds.xml/tree")
		assert.Equal(t, http.StatusUnprocessableEntity, code)
	})

	t.Run("no record links", func(t *testing.T) {
		r := setupRouter(t, &stubBackend{}, nil)
		code, _ := perform(t, r, http.MethodGet, "/api/v1/records/PPN1/archive")
		assert.Equal(t, http.StatusServiceUnavailable, code)
	})

	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestReload(t *testing.T) {
	base := "/api/v1/archives/archives/fonds.xml/reload"

	t.Run("synchronous", func(t *testing.T) {
		backend := &stubBackend{}
		r := setupRouter(t, backend, nil)
		code, _ := perform(t, r, http.MethodPost, base)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, 1, backend.loads)
	})

	t.Run("queued", func(t *testing.T) {
		backend := &stubBackend{}
		var queued []tasks.ArchiveReloadTask
		r := setupRouter(t, backend, func(_ context.Context, task tasks.ArchiveReloadTask) error {
			queued = append(queued, task)
			return nil
		})
		code, _ := perform(t, r, http.MethodPost, base)
		assert.Equal(t, http.StatusAccepted, code)
		require.Len(t, queued, 1)
		assert.Equal(t, "archives/fonds.xml", queued[0].Key())
		assert.Zero(t, backend.loads)
	})

	t.Run("queue failure", func(t *testing.T) {
		r := setupRouter(t, &stubBackend{}, func(context.Context, tasks.ArchiveReloadTask) error {
			return errors.New("broker down")
		})
		code, _ := perform(t, r, http.MethodPost, base)
		assert.Equal(t, http.StatusInternalServerError, code)
	})
}
