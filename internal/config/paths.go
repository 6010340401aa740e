package config

import "path/filepath"

// HistoryFile returns the shell history path next to the config file, or
// "" when no config directory can be determined.
func HistoryFile() string {
	dir := getConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "history")
}
