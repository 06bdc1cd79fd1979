package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(writeConfig(t, "SOURCES: []\n"))
	require.NoError(t, err)
	require.Equal(t, DefaultFetchLimit, c.FetchLimit)
	require.Equal(t, DefaultFetchTimeout, c.FetchTimeout)
	require.Equal(t, DefaultWorkers, c.Concurrency.Fetch)
	require.Equal(t, DefaultExportMaxPosts, c.ExportMaxPosts)
	require.Equal(t, "sqlite", c.Database.Type)
	require.NotEmpty(t, c.Database.DSN)
	require.Equal(t, "pretty", c.LogFormat)
	require.Equal(t, "en", c.LogLocale)
}

func TestLoad_SourcesAndCategories(t *testing.T) {
	p := writeConfig(t, `
CATEGORIES:
  - name: Go
    slug: go
SOURCES:
  - name: Example
    feed_url: https://example.com/feed.xml
    category: go
  - name: Paused
    feed_url: https://paused.example.com/rss
    active: false
FETCH_LIMIT: 10
`)
	c, err := Load(p)
	require.NoError(t, err)
	require.Len(t, c.Sources, 2)
	require.True(t, c.Sources[0].IsActive())
	require.False(t, c.Sources[1].IsActive())
	require.Equal(t, 10, c.FetchLimit)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"negative limit":   "FETCH_LIMIT: -1\n",
		"bad db type":      "DATABASE:\n  type: mysql\n",
		"postgres no dsn":  "DATABASE:\n  type: postgres\n",
		"relative url":     "SOURCES:\n  - name: a\n    feed_url: /feed.xml\n",
		"ftp url":          "SOURCES:\n  - name: a\n    feed_url: ftp://example.com/feed\n",
		"unknown category": "SOURCES:\n  - name: a\n    feed_url: https://a.example/feed\n    category: nope\n",
		"missing slug":     "CATEGORIES:\n  - name: x\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BLOGHUB_DB_DSN", "/tmp/override.db")
	t.Setenv("BLOGHUB_FETCH_LIMIT", "7")
	t.Setenv("BLOGHUB_LOG_LEVEL", "debug")
	c, err := Load(writeConfig(t, "DATABASE:\n  dsn: ./file.db\n"))
	require.NoError(t, err)
	require.Equal(t, "/tmp/override.db", c.Database.DSN)
	require.Equal(t, 7, c.FetchLimit)
	require.Equal(t, "debug", c.LogLevel)

	t.Setenv("BLOGHUB_FETCH_LIMIT", "seven")
	_, err = Load(writeConfig(t, ""))
	require.Error(t, err)
}

func TestValidateFeedURL(t *testing.T) {
	require.NoError(t, ValidateFeedURL("https://blog.example.com/rss"))
	require.NoError(t, ValidateFeedURL("http://localhost:8080/feed"))
	require.Error(t, ValidateFeedURL(""))
	require.Error(t, ValidateFeedURL("not a url"))
	require.Error(t, ValidateFeedURL("mailto:someone@example.com"))
}

func TestLoad_EnrichRules(t *testing.T) {
	c, err := Load(writeConfig(t, `
ENRICH_SOURCES: true
ENRICH_RULES:
  description: "meta[name=summary]@content||.intro"
  logo: "img.avatar@src"
`))
	require.NoError(t, err)
	require.True(t, c.EnrichSources)
	require.Equal(t, "meta[name=summary]@content||.intro", c.EnrichRules.Description)
	require.Equal(t, "img.avatar@src", c.EnrichRules.Logo)
}
