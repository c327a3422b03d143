package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"archive-view-go/internal/archiveerr"
	"archive-view-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "db2", "b.xml"), sampleEAD)
	writeFile(t, filepath.Join(dir, "db1", "a.XML"), sampleEAD)
	writeFile(t, filepath.Join(dir, "db1", "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, "loose.xml"), "ignored")

	src, err := NewFileSource(dir)
	require.NoError(t, err)

	resources, err := src.ListResources(context.Background())
	require.NoError(t, err)
	require.Len(t, resources, 2)
	assert.Equal(t, "db1/a.XML", resources[0].Key().String())
	assert.Equal(t, "db2/b.xml", resources[1].Key().String())
	assert.False(t, resources[0].LastModified.IsZero())

	data, err := src.FetchDocument(context.Background(), resources[1])
	require.NoError(t, err)
	assert.Equal(t, sampleEAD, string(data))

	_, err = src.FetchDocument(context.Background(), model.ArchiveResource{DatabaseName: "db1", ResourceName: "missing.xml"})
	assert.ErrorIs(t, err, archiveerr.ErrResourceNotFound)

	_, err = src.FetchDocument(context.Background(), model.ArchiveResource{DatabaseName: "..", ResourceName: "loose.xml"})
	assert.ErrorIs(t, err, archiveerr.ErrResourceNotFound)
}

func TestFileSourceErrors(t *testing.T) {
	_, err := NewFileSource(" ")
	assert.ErrorIs(t, err, archiveerr.ErrConfigurationMissing)

	src, err := NewFileSource(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	_, err = src.ListResources(context.Background())
	assert.ErrorIs(t, err, archiveerr.ErrBackendUnreachable)
}

func TestFileSourceWithParser(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "db", "fonds.xml"), sampleEAD)
	src, err := NewFileSource(dir)
	require.NoError(t, err)

	p, err := NewXMLDatabaseParser(src, testTemplates)
	require.NoError(t, err)
	root, err := p.LoadResource(context.Background(), model.ArchiveResource{DatabaseName: "db", ResourceName: "fonds.xml"})
	require.NoError(t, err)
	assert.Equal(t, "Family papers", root.Label)
}
