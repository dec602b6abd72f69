package config

import (
	"os"
	"path/filepath"
	"strings"
)

// FindProjectFile looks for name in the working directory and its parents,
// stopping at the first directory that holds a .git entry. It returns name
// unchanged when nothing is found, so Load falls back to the defaults.
func FindProjectFile(name string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := wd
	for {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		// Project root
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return name, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return name, nil
		}
		dir = parent
	}
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func (c *Config) expandPaths() {
	c.Database.Path = ExpandHome(c.Database.Path)
	c.Storage.Dir = ExpandHome(c.Storage.Dir)
	c.Cache.Dir = ExpandHome(c.Cache.Dir)
	c.Logging.File = ExpandHome(c.Logging.File)
}
