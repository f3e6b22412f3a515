// Package project resolves the on-disk layout of a memd project directory.
package project

import (
	"os"
	"path/filepath"
)

// VolatileFiles lists the files memd writes under a project's var/ directory.
var VolatileFiles = []string{
	"memory.db", "memory.db-journal", "memory.db-wal", "memory.db-shm",
	"daemon.lock", "daemon.log", "daemon.pid", "memd.sock",
	"lexical.bleve", "vector.faiss", "vector.meta.db",
	"audit.log", "jobs.toml",
}

// DefaultDirName is the project directory memd creates next to a workspace.
const DefaultDirName = ".memd"

// VarDir returns the directory under projectDir that holds volatile state.
func VarDir(projectDir string) string {
	return filepath.Join(projectDir, "var")
}

// VarPath returns the path for a named volatile file within projectDir,
// creating no directories as a side effect.
func VarPath(projectDir, filename string) string {
	return filepath.Join(VarDir(projectDir), filename)
}

// EnsureVarDir creates the var/ directory if it doesn't already exist.
func EnsureVarDir(projectDir string) error {
	return os.MkdirAll(VarDir(projectDir), 0o700)
}

// IsVolatileFile reports whether filename is one of memd's own managed files.
func IsVolatileFile(filename string) bool {
	for _, vf := range VolatileFiles {
		if filename == vf {
			return true
		}
	}
	if matched, _ := filepath.Match("*.db-*", filename); matched {
		return true
	}
	return false
}

// ResolveDir returns the project directory to use, given an explicit
// --project flag value (possibly empty) and the current working directory.
// An empty explicit value resolves to "<cwd>/.memd".
func ResolveDir(explicit string) (string, error) {
	if explicit != "" {
		abs, err := filepath.Abs(explicit)
		if err != nil {
			return "", err
		}
		return abs, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDirName), nil
}
