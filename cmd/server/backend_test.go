package main

import (
	"os"
	"path/filepath"
	"testing"

	"archive-view-go/internal/archiveerr"
	"archive-view-go/internal/config"
	"archive-view-go/internal/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileConfig(dir string) *config.Config {
	return &config.Config{Archives: config.ArchivesConfig{
		Backend:        config.BackendFile,
		CollapseLevel:  1,
		File:           config.FileConfig{Directory: dir},
		MetadataFields: config.DefaultMetadataFields,
	}}
}

func TestBuildBackendFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "archives"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "archives", "fonds.xml"),
		[]byte(`<ead><archdesc><did><unittitle>Fonds</unittitle></did></archdesc></ead>`), 0o644))

	backend, err := buildBackend(fileConfig(dir))
	require.NoError(t, err)
	assert.IsType(t, &parser.XMLDatabaseParser{}, backend)

	resources, err := backend.ListResources(t.Context())
	require.NoError(t, err)
	require.Len(t, resources, 1)

	root, err := backend.LoadResource(t.Context(), resources[0])
	require.NoError(t, err)
	assert.Equal(t, "Fonds", root.Label)
}

func TestBuildBackendErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown backend", func(c *config.Config) { c.Archives.Backend = "ftp" }},
		{"index without elasticsearch", func(c *config.Config) { c.Archives.Backend = config.BackendIndex }},
		{"file without directory", func(c *config.Config) { c.Archives.File.Directory = "" }},
		{"bad templates", func(c *config.Config) {
			c.Archives.MetadataFields = []config.MetadataFieldConfig{{Label: "x", Area: 9, Expression: "did"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fileConfig(t.TempDir())
			tt.mutate(cfg)
			_, err := buildBackend(cfg)
			assert.ErrorIs(t, err, archiveerr.ErrConfigurationMissing)
		})
	}
}
