package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencode-ai/opencode/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProjectConfig(t *testing.T, dir, content string) {
	t.Helper()
	path := filepath.Join(dir, ".opencode", "opencode.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func isolateHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	t.Cleanup(func() { os.Setenv("HOME", oldHome) })
	return tmpDir
}

func TestLoadBasicConfig(t *testing.T) {
	tmpDir := isolateHome(t)
	writeProjectConfig(t, tmpDir, `{
		"$schema": "https://opencode.ai/config.json",
		"model": "anthropic/claude-sonnet-4-20250514",
		"small_model": "anthropic/claude-3-5-haiku-20241022",
		"provider": {
			"anthropic": {
				"options": { "apiKey": "sk-ant-test123" }
			}
		},
		"agent": {
			"coder": {
				"temperature": 0.7,
				"top_p": 0.9,
				"tools": { "bash": true, "edit": true }
			}
		}
	}`)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "https://opencode.ai/config.json", cfg.Schema)
	assert.Equal(t, "anthropic/claude-sonnet-4-20250514", cfg.Model)
	assert.Equal(t, "anthropic/claude-3-5-haiku-20241022", cfg.SmallModel)

	anthropic := cfg.Provider["anthropic"]
	require.NotNil(t, anthropic.Options)
	assert.Equal(t, "sk-ant-test123", anthropic.Options.APIKey)

	coder := cfg.Agent["coder"]
	require.NotNil(t, coder.Temperature)
	assert.Equal(t, 0.7, *coder.Temperature)
	require.NotNil(t, coder.TopP)
	assert.Equal(t, 0.9, *coder.TopP)
	assert.True(t, coder.Tools["bash"])
}

func TestJSONCComments(t *testing.T) {
	tmpDir := isolateHome(t)
	writeProjectConfig(t, tmpDir, `{
		// model selection
		"model": "anthropic/claude-sonnet-4-20250514",
		/* small model
		   used for titles */
		"small_model": "anthropic/claude-3-5-haiku-20241022"
	}`)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-sonnet-4-20250514", cfg.Model)
	assert.Equal(t, "anthropic/claude-3-5-haiku-20241022", cfg.SmallModel)
}

func TestDomainSections(t *testing.T) {
	tmpDir := isolateHome(t)
	writeProjectConfig(t, tmpDir, `{
		"store": { "path": "/var/lib/opencode/opencode.db" },
		"sandbox": { "allowedRoot": "/workspace" },
		"turn": { "maxIterations": 40, "subagentMaxIterations": 15, "subagentMaxDepth": 3 },
		"permission": {
			"default": "ask",
			"toolOverrides": { "read_file": "allow", "write_file": "ask" }
		},
		"events": { "sseHeartbeatSeconds": 20, "permissionTimeoutSeconds": 90 }
	}`)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/opencode/opencode.db", cfg.Store.Path)
	assert.Equal(t, "/workspace", cfg.Sandbox.AllowedRoot)
	assert.Equal(t, 40, cfg.Turn.MaxIterations)
	assert.Equal(t, 3, cfg.Turn.SubagentMaxDepth)

	require.NotNil(t, cfg.Permission)
	assert.Equal(t, types.PolicyAsk, cfg.Permission.Default)
	assert.Equal(t, types.PolicyAllow, cfg.Permission.ToolOverrides["read_file"])

	assert.Equal(t, 20, cfg.Events.SSEHeartbeatSeconds)
	assert.Equal(t, 90, cfg.Events.PermissionTimeoutSeconds)
}

func TestEnvVarOverride(t *testing.T) {
	tmpDir := isolateHome(t)
	writeProjectConfig(t, tmpDir, `{"model": "file-model"}`)

	os.Setenv("OPENCODE_MODEL", "env-model")
	defer os.Unsetenv("OPENCODE_MODEL")
	os.Setenv("ANTHROPIC_API_KEY", "env-key")
	defer os.Unsetenv("ANTHROPIC_API_KEY")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Model)
	assert.Equal(t, "env-key", cfg.Provider["anthropic"].APIKey)
}

func TestEnvVarDoesNotOverrideExplicitAPIKey(t *testing.T) {
	tmpDir := isolateHome(t)
	writeProjectConfig(t, tmpDir, `{
		"provider": { "anthropic": { "apiKey": "file-key" } }
	}`)

	os.Setenv("ANTHROPIC_API_KEY", "env-key")
	defer os.Unsetenv("ANTHROPIC_API_KEY")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.Provider["anthropic"].APIKey)
}

func TestConfigMergeFunction(t *testing.T) {
	target := &types.Config{
		Model:    "base-model",
		Provider: map[string]types.ProviderConfig{"anthropic": {APIKey: "base-key"}},
	}
	source := &types.Config{
		SmallModel: "fast-model",
		Provider:   map[string]types.ProviderConfig{"openai": {APIKey: "openai-key"}},
		Sandbox:    types.SandboxConfig{AllowedRoot: "/workspace"},
	}

	mergeConfig(target, source)

	assert.Equal(t, "base-model", target.Model)
	assert.Equal(t, "fast-model", target.SmallModel)
	assert.Equal(t, "base-key", target.Provider["anthropic"].APIKey)
	assert.Equal(t, "openai-key", target.Provider["openai"].APIKey)
	assert.Equal(t, "/workspace", target.Sandbox.AllowedRoot)
}

func TestProjectConfigOverridesGlobalConfig(t *testing.T) {
	tmpDir := isolateHome(t)

	globalPath := filepath.Join(GetPaths().Config, "opencode.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(globalPath), 0755))
	require.NoError(t, os.WriteFile(globalPath, []byte(`{"model": "global-model"}`), 0644))

	writeProjectConfig(t, tmpDir, `{"model": "project-model"}`)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "project-model", cfg.Model)
}

func TestSaveAndReload(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "opencode.json")

	cfg := &types.Config{
		Model: "anthropic/claude-sonnet-4",
		Sandbox: types.SandboxConfig{
			AllowedRoot: "/workspace",
		},
		Permission: &types.PermissionConfig{Default: types.PolicyAsk},
	}
	require.NoError(t, Save(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded types.Config
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, cfg.Model, loaded.Model)
	assert.Equal(t, cfg.Sandbox.AllowedRoot, loaded.Sandbox.AllowedRoot)
	require.NotNil(t, loaded.Permission)
	assert.Equal(t, types.PolicyAsk, loaded.Permission.Default)
}
