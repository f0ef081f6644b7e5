// Package config loads diego configuration from local and global YAML files
// and from the environment. It is internal; CLI code applies precedence
// (flags, then environment, then local file, then global file) and maps the
// result onto the orchestrator and scan engine.
package config
