package basex

import (
	"context"
	"net/http"
	"testing"
	"time"

	"archive-view-go/internal/archiveerr"
	"archive-view-go/internal/config"
	"archive-view-go/internal/model"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURL = "http://basex.test:8984"

const listing = `<databases>
  <database>
    <name>archives</name>
    <resources>
      <resource modified-date="2024-03-01T10:15:30.000Z">fonds.xml</resource>
      <resource modified-date="garbage">broken.xml</resource>
    </resources>
  </database>
  <database>
    <name>other</name>
    <resources>
      <resource modified-date="2024-03-02T08:00:00">b.xml</resource>
    </resources>
  </database>
</databases>`

func setupHTTPMock(t *testing.T) *Client {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	c, err := NewClient(config.BaseXConfig{URL: testURL + "/", TimeoutSeconds: 5})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(config.BaseXConfig{})
	assert.ErrorIs(t, err, archiveerr.ErrConfigurationMissing)
}

func TestListResources(t *testing.T) {
	c := setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodGet, testURL+"/databases",
		httpmock.NewStringResponder(http.StatusOK, listing))

	resources, err := c.ListResources(context.Background())
	require.NoError(t, err)
	require.Len(t, resources, 3)

	assert.Equal(t, "archives/fonds.xml", resources[0].Key().String())
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 30, 0, time.UTC), resources[0].LastModified.UTC())
	assert.True(t, resources[1].LastModified.IsZero(), "unparseable date")
	assert.Equal(t, "other", resources[2].DatabaseName)
	assert.Equal(t, time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC), resources[2].LastModified)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestListResourcesErrors(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		want      error
	}{
		{"server error", httpmock.NewStringResponder(http.StatusInternalServerError, "boom"), archiveerr.ErrBackendUnreachable},
		{"unauthorized", httpmock.NewStringResponder(http.StatusUnauthorized, ""), archiveerr.ErrBackendUnreachable},
		{"transport", httpmock.NewErrorResponder(assert.AnError), archiveerr.ErrBackendUnreachable},
		{"malformed", httpmock.NewStringResponder(http.StatusOK, "<databases><database>"), archiveerr.ErrInvalidFormat},
		{"wrong root", httpmock.NewStringResponder(http.StatusOK, "<html/>"), archiveerr.ErrInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := setupHTTPMock(t)
			httpmock.RegisterResponder(http.MethodGet, testURL+"/databases", tt.responder)

			resources, err := c.ListResources(context.Background())
			assert.Nil(t, resources)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFetchDocument(t *testing.T) {
	c := setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodGet, testURL+"/db/archives/fonds.xml",
		httpmock.NewStringResponder(http.StatusOK, "<ead/>"))
	httpmock.RegisterResponder(http.MethodGet, testURL+"/db/archives/missing.xml",
		httpmock.NewStringResponder(http.StatusNotFound, "not found"))
	httpmock.RegisterResponder(http.MethodGet, testURL+"/db/archives/broken.xml",
		httpmock.NewStringResponder(http.StatusBadGateway, ""))

	data, err := c.FetchDocument(context.Background(), model.ArchiveResource{DatabaseName: "archives", ResourceName: "fonds.xml"})
	require.NoError(t, err)
	assert.Equal(t, "<ead/>", string(data))

	_, err = c.FetchDocument(context.Background(), model.ArchiveResource{DatabaseName: "archives", ResourceName: "missing.xml"})
	assert.ErrorIs(t, err, archiveerr.ErrResourceNotFound)

	_, err = c.FetchDocument(context.Background(), model.ArchiveResource{DatabaseName: "archives", ResourceName: "broken.xml"})
	assert.ErrorIs(t, err, archiveerr.ErrBackendUnreachable)
}

func TestFetchDocumentInSubPath(t *testing.T) {
	c := setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodGet, testURL+"/db/archives/sub/fonds.xml",
		httpmock.NewStringResponder(http.StatusOK, "<ead/>"))

	data, err := c.FetchDocument(context.Background(), model.ArchiveResource{DatabaseName: "archives", ResourceName: "sub/fonds.xml"})
	require.NoError(t, err)
	assert.Equal(t, "<ead/>", string(data))
}

func TestEscapeResourcePath(t *testing.T) {
	assert.Equal(t, "fonds.xml", escapeResourcePath("fonds.xml"))
	assert.Equal(t, "sub/fonds.xml", escapeResourcePath("sub/fonds.xml"))
	assert.Equal(t, "a%20b/c%3Fd.xml", escapeResourcePath("a b/c?d.xml"))
}

func TestParseModifiedDate(t *testing.T) {
	assert.True(t, parseModifiedDate("").IsZero())
	assert.True(t, parseModifiedDate("yesterday").IsZero())
	assert.Equal(t, 2024, parseModifiedDate("2024-01-02 03:04:05").Year())
}
