// Package config loads and merges the opencode-server configuration.
//
// # Configuration Loading
//
// Load searches for and merges configuration from three sources, each
// overriding the last:
//
//  1. Global config (~/.config/opencode/opencode.json[c], XDG-compliant)
//  2. Project config (<directory>/.opencode/opencode.json[c])
//  3. Environment variable overrides
//
// # Supported Formats
//
//   - opencode.json - standard JSON
//   - opencode.jsonc - JSON with // and /* */ comments, stripped with
//     tidwall/jsonc before unmarshaling
//
// # Configuration Merging
//
// mergeConfig overwrites scalar fields, merges the Provider and Agent maps
// key by key, and replaces the Permission/Store/Sandbox/Turn/Events
// sections wholesale when the source config sets them.
//
// # Path Management
//
// GetPaths returns XDG Base Directory Specification paths:
//   - Data: ~/.local/share/opencode (XDG_DATA_HOME)
//   - Config: ~/.config/opencode (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/opencode (XDG_CACHE_HOME)
//   - State: ~/.local/state/opencode (XDG_STATE_HOME)
//
// On Windows these fall back to APPDATA.
//
// # Environment Variable Overrides
//
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY / GOOGLE_API_KEY / AWS_ACCESS_KEY_ID -
//     fill in a provider's APIKey when the config file left it blank
//   - OPENCODE_MODEL - override the default model
//   - OPENCODE_SMALL_MODEL - override the small model
//
// # Usage Example
//
//	cfg, err := config.Load(workdir)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	paths := config.GetPaths()
//	if err := paths.EnsurePaths(); err != nil {
//		log.Fatal(err)
//	}
//
//	if err := config.Save(cfg, config.GlobalConfigPath()); err != nil {
//		log.Fatal(err)
//	}
package config
