package storage

import (
	"errors"
	"testing"

	"archive-view-go/internal/archiveerr"
	"archive-view-go/internal/model"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
)

func TestSplitObjectKey(t *testing.T) {
	tests := []struct {
		key      string
		database string
		resource string
		ok       bool
	}{
		{"archives/fonds.xml", "archives", "fonds.xml", true},
		{"archives/FONDS.XML", "archives", "FONDS.XML", true},
		{"fonds.xml", "", "", false},
		{"a/b/c.xml", "", "", false},
		{"archives/readme.txt", "", "", false},
		{"/fonds.xml", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			db, res, ok := SplitObjectKey(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.database, db)
			assert.Equal(t, tt.resource, res)
		})
	}
}

func TestObjectKeyRoundTrip(t *testing.T) {
	r := model.ArchiveResource{DatabaseName: "archives", ResourceName: "fonds.xml"}
	db, res, ok := SplitObjectKey(ObjectKey(r))
	assert.True(t, ok)
	assert.Equal(t, r.DatabaseName, db)
	assert.Equal(t, r.ResourceName, res)
}

func TestObjectError(t *testing.T) {
	notFound := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	assert.ErrorIs(t, objectError("fetch", "a/b.xml", notFound), archiveerr.ErrResourceNotFound)
	assert.ErrorIs(t, objectError("fetch", "a/b.xml", errors.New("dial tcp: refused")), archiveerr.ErrBackendUnreachable)
}

func TestNewObjectSourceRequiresClient(t *testing.T) {
	_, err := NewObjectSource(nil, "ead")
	assert.ErrorIs(t, err, archiveerr.ErrConfigurationMissing)
}
