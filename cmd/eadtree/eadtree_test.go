package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEAD = `<?xml version="1.0" encoding="UTF-8"?>
<ead xmlns="urn:isbn:1-931666-22-9">
  <archdesc level="fonds" type="collection">
    <did><unitid>F1</unitid><unittitle>Nachlass Muster</unittitle></did>
    <dsc>
      <c01 id="s1" level="series">
        <did><unittitle>Korrespondenz</unittitle></did>
        <c02 id="f1" level="file"><did><unittitle>Briefe 1900</unittitle></did></c02>
      </c01>
      <c01 id="s2" level="series">
        <did><unittitle>Manuskripte</unittitle></did>
      </c01>
    </dsc>
  </archdesc>
</ead>`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeSample(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "archives")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "fonds.xml")
	require.NoError(t, os.WriteFile(path, []byte(sampleEAD), 0o644))
	return path
}

func TestRender(t *testing.T) {
	path := writeSample(t)

	out, err := run(t, "render", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Nachlass Muster [collection]")
	assert.Contains(t, out, "Korrespondenz")
	assert.NotContains(t, out, "Briefe 1900")

	out, err = run(t, "render", "--all", "--ids", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Briefe 1900 (f1)")

	out, err = run(t, "render", "--search", "briefe", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Briefe 1900")
	assert.NotContains(t, out, "Manuskripte")
}

func TestRenderErrors(t *testing.T) {
	_, err := run(t, "render", filepath.Join(t.TempDir(), "missing.xml"))
	assert.Error(t, err)

	broken := filepath.Join(t.TempDir(), "broken.xml")
	require.NoError(t, os.WriteFile(broken, []byte("<ead><archdesc>"), 0o644))
	_, err = run(t, "render", broken)
	assert.Error(t, err)

	_, err = run(t, "render", "--config", filepath.Join(t.TempDir(), "none.yaml"), broken)
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	path := writeSample(t)
	out, err := run(t, "list", filepath.Dir(filepath.Dir(path)))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "archives")
	assert.Contains(t, lines[1], "fonds.xml")
}
