// Package config loads the JSON runtime configuration for agentrixd and fills
// in defaults, resolving relative paths against the config file directory.
package config
