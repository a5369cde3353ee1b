// Package config loads and merges diffchat configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (OPENAI_API_KEY, DIFFCHAT_MODEL, DIFFCHAT_STATE, etc.)
//  3. Config file (--config, $DIFFCHAT_CONFIG, ./config.json, or
//     $XDG_CONFIG_HOME/diffchat/config.json), JSON or YAML by extension
//  4. Built-in defaults
//
// Role prompts come from the "roles" map and, optionally, a separate
// roles_file. Use [Load] to obtain a merged [Config] and [Config.Validate]
// before constructing any collaborator; a missing role set or API key is a
// fatal [*Error].
package config
