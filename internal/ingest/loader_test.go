package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/huduma-ai/civicqa/internal/model"
	"github.com/huduma-ai/civicqa/internal/pkg/errs"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadMissingRoot(t *testing.T) {
	loader := NewLoader()
	_, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, errs.ErrLoadRoot)
}

func TestLoadWalksSupportedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "garbage.txt", "Garbage collection is every Monday in Zone A.")
	writeFile(t, root, "guides/streetlights.md", "# Streetlight outages\n\nReport streetlight outages to Dept X.")
	writeFile(t, root, "ignore.bin", "binary")
	writeFile(t, root, "empty.txt", "   ")

	loader := NewLoader()
	report, err := loader.Load(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, report.Docs, 2)
	require.Len(t, report.Warnings, 2)

	bySource := map[string]model.Document{}
	for _, doc := range report.Docs {
		bySource[filepath.ToSlash(doc.Source)] = doc
	}
	garbage, ok := bySource["garbage.txt"]
	require.True(t, ok)
	require.Equal(t, "Garbage collection is every Monday in Zone A.", garbage.RawText)
	require.Equal(t, model.AudiencePublic, garbage.Audience)
	require.NotEmpty(t, garbage.ID)

	lights, ok := bySource["guides/streetlights.md"]
	require.True(t, ok)
	require.Contains(t, lights.RawText, "Report streetlight outages to Dept X.")
	require.NotContains(t, lights.RawText, "#")
	require.Equal(t, "Streetlight outages", lights.Title)
}

func TestLoadStaffAudience(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "staff/sop.txt", "Escalation procedure for staff only.")
	writeFile(t, root, "public-info.txt", "Office hours are 8am to 5pm.")

	loader := NewLoader()
	report, err := loader.Load(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, report.Docs, 2)
	for _, doc := range report.Docs {
		if filepath.ToSlash(doc.Source) == "staff/sop.txt" {
			require.Equal(t, model.AudienceStaff, doc.Audience)
		} else {
			require.Equal(t, model.AudiencePublic, doc.Audience)
		}
	}
}

func TestLoadStableDocIDs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "some civic content")

	loader := NewLoader()
	first, err := loader.Load(context.Background(), root)
	require.NoError(t, err)
	second, err := loader.Load(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, first.Docs[0].ID, second.Docs[0].ID)
}
