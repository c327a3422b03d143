package render

import (
	"strings"
	"testing"

	"archive-view-go/internal/model"
	"archive-view-go/internal/tree"

	"github.com/stretchr/testify/assert"
)

func sampleTree(collapseLevel int) *tree.ArchiveTree {
	root := model.NewArchiveEntry(0, 0)
	root.ID, root.Label, root.NodeType = "root", "Bestand", "collection"
	for i, id := range []string{"s1", "s2"} {
		series := model.NewArchiveEntry(i, 1)
		series.ID, series.Label = id, "Serie "+id
		file := model.NewArchiveEntry(0, 2)
		file.ID, file.Label = id+"-f", "Akte "+id
		series.AddChild(file)
		root.AddChild(series)
	}
	t := tree.NewArchiveTree(collapseLevel)
	t.Generate(root)
	return t
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestTreeTextVisible(t *testing.T) {
	out := lines(TreeText(sampleTree(1), Options{}))
	assert.Equal(t, []string{
		"Bestand [collection]",
		"├── Serie s1 +",
		"└── Serie s2 +",
	}, out)
}

func TestTreeTextAll(t *testing.T) {
	out := lines(TreeText(sampleTree(1), Options{All: true, ShowIDs: true}))
	assert.Len(t, out, 5)
	assert.Equal(t, "Bestand [collection] (root)", out[0])
	assert.Contains(t, out[2], "Akte s1 (s1-f)")
}

func TestTreeTextSearch(t *testing.T) {
	tr := sampleTree(1)
	tr.Search("s2-f")
	out := lines(TreeText(tr, Options{}))
	assert.Len(t, out, 3)
	assert.Contains(t, out[1], "Serie s2")
	assert.Contains(t, out[2], HitMarker+"Akte s2")
}

func TestTreeTextEmpty(t *testing.T) {
	assert.Empty(t, TreeText(tree.NewArchiveTree(1), Options{}))
}
