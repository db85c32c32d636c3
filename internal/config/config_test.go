package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquest/pkg/blackboard"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inquest.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Len(t, cfg.Workers.Core, 4)
	assert.Equal(t, "indicator-enrichment", cfg.Workers.IndicatorWorker)
	assert.NotEmpty(t, cfg.Hierarchy.Lexicon)
	assert.NotEmpty(t, cfg.Capabilities.Available)
	assert.Len(t, cfg.Capabilities.Fallback, 3)

	var hasMetadata, hasMap bool
	for _, area := range cfg.Areas {
		if area.Name == blackboard.AreaMetadata && area.Kind == blackboard.AreaKindList {
			hasMetadata = true
		}
		if area.Kind == blackboard.AreaKindMap {
			hasMap = true
		}
	}
	assert.True(t, hasMetadata)
	assert.True(t, hasMap)
}

func TestLoad(t *testing.T) {
	t.Run("empty path yields defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file values merge over defaults", func(t *testing.T) {
		path := writeConfigFile(t, `
redis:
  addr: redis.internal:6380
workers:
  core: [triage-analyst, network-analyst]
  indicator_worker: indicator-enrichment
  timeout_seconds: 60
monitor:
  refresh_interval_seconds: 5
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
		assert.Equal(t, []string{"triage-analyst", "network-analyst"}, cfg.Workers.Core)
		assert.Equal(t, 60, cfg.Workers.TimeoutSeconds)
		assert.Equal(t, 5, cfg.Monitor.RefreshIntervalSeconds)
		// Untouched sections keep their defaults.
		assert.NotEmpty(t, cfg.Hierarchy.Lexicon)
		assert.Equal(t, Default().Paths, cfg.Paths)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfigFile(t, "redis: [not a mapping")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("invalid configuration is rejected", func(t *testing.T) {
		path := writeConfigFile(t, `
workers:
  timeout_seconds: 0
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout_seconds")
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config { return Default() }

	t.Run("empty redis addr", func(t *testing.T) {
		cfg := valid()
		cfg.Redis.Addr = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("no areas", func(t *testing.T) {
		cfg := valid()
		cfg.Areas = nil
		assert.Error(t, cfg.Validate())
	})

	t.Run("duplicate area", func(t *testing.T) {
		cfg := valid()
		cfg.Areas = append(cfg.Areas, cfg.Areas[0])
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid area kind", func(t *testing.T) {
		cfg := valid()
		cfg.Areas[0].Kind = "set"
		assert.Error(t, cfg.Validate())
	})

	t.Run("metadata list area is required", func(t *testing.T) {
		cfg := valid()
		for i := range cfg.Areas {
			if cfg.Areas[i].Name == blackboard.AreaMetadata {
				cfg.Areas[i].Kind = blackboard.AreaKindMap
			}
		}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), blackboard.AreaMetadata)
	})

	t.Run("investigation parameters map area is required", func(t *testing.T) {
		cfg := valid()
		cfg.Areas = []blackboard.AreaSpec{
			{Name: "network", Kind: blackboard.AreaKindList},
			{Name: blackboard.AreaMetadata, Kind: blackboard.AreaKindList},
		}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), blackboard.AreaInvestigationMeta)
	})

	t.Run("investigation parameters area must be map kind", func(t *testing.T) {
		cfg := valid()
		for i := range cfg.Areas {
			if cfg.Areas[i].Name == blackboard.AreaInvestigationMeta {
				cfg.Areas[i].Kind = blackboard.AreaKindList
			}
		}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), blackboard.AreaInvestigationMeta)
	})

	t.Run("empty core worker set", func(t *testing.T) {
		cfg := valid()
		cfg.Workers.Core = nil
		assert.Error(t, cfg.Validate())
	})

	t.Run("non-positive refresh interval", func(t *testing.T) {
		cfg := valid()
		cfg.Monitor.RefreshIntervalSeconds = 0
		assert.Error(t, cfg.Validate())
	})
}
