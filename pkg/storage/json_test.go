package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"groupon-scraper/pkg/models"
)

func TestSaveWritesIndentedArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output", "deals.json")
	repo := New(path, nil)

	result := models.ScrapeResult{
		{
			URL:          "https://www.groupon.com/deals/a?x=1&y=2",
			RetrievedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			Title:        "Café & Spa",
			PriceOptions: []models.PriceOption{},
			Highlights:   []string{},
			SearchTerm:   "Hydrafacial",
			PostalCode:   "10001",
		},
	}
	require.NoError(t, repo.Save(context.Background(), result))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	s := string(b)

	require.True(t, strings.HasPrefix(s, "[\n"), "expected an indented array")
	require.Contains(t, s, "Café & Spa", "non-ASCII text stays readable")
	require.Contains(t, s, "?x=1&y=2", "ampersands are not escaped")
	require.NotContains(t, s, `\u0026`)

	var back models.ScrapeResult
	require.NoError(t, json.Unmarshal(b, &back))
	require.Len(t, back, 1)
	require.Equal(t, result[0].URL, back[0].URL)

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err), "temp file must be renamed away")
}

func TestSaveEmptyResultWritesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deals.json")
	repo := New(path, nil)

	require.NoError(t, repo.Save(context.Background(), nil))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "[]\n", string(b))
}

func TestSaveRejectsEmptyPath(t *testing.T) {
	repo := New("", nil)
	require.Error(t, repo.Save(context.Background(), models.ScrapeResult{}))
}

func TestSaveHonorsContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deals.json")
	repo := New(path, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, repo.Save(ctx, models.ScrapeResult{}))
}
