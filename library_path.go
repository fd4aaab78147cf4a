// SPDX-License-Identifier: AGPL-3.0-or-later
// © 2025 dex-go Contributors
// Part of dex-go — Licensed under AGPL-3.0-or-later.

package dex

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dex-lang/dex-go/internal/envconfig"
)

// LibraryNames are the file names libDex is published under on this platform.
func LibraryNames() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"libDex.dylib", "libDex.so"}
	case "windows":
		return []string{"Dex.dll", "libDex.dll"}
	default:
		return []string{"libDex.so"}
	}
}

// SearchDirs lists the directories FindLibraries looks in, in order:
// DEX_LIBRARY_PATH, the platform loader path, the executable's directory,
// and the working directory.
func SearchDirs() []string {
	dirs := append([]string(nil), envconfig.LibraryPath...)

	var ldVar string
	switch runtime.GOOS {
	case "windows":
		ldVar = "PATH"
	case "darwin":
		ldVar = "DYLD_LIBRARY_PATH"
	default:
		ldVar = "LD_LIBRARY_PATH"
	}
	for _, p := range strings.Split(os.Getenv(ldVar), string(os.PathListSeparator)) {
		if p != "" {
			dirs = append(dirs, p)
		}
	}

	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	return dirs
}

// FindLibraries returns every libDex candidate in dirs, with symlinks
// resolved and duplicates removed.
func FindLibraries(dirs []string) []string {
	var found []string
	seen := map[string]bool{}
	for _, dir := range dirs {
		dir, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		for _, name := range LibraryNames() {
			candidate := filepath.Join(dir, name)
			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			if resolved, err := filepath.EvalSymlinks(candidate); err == nil {
				candidate = resolved
			}
			if seen[candidate] {
				continue
			}
			seen[candidate] = true
			found = append(found, candidate)
		}
	}
	slog.Debug("dex library search", "dirs", dirs, "found", found)
	return found
}

// ResolveLibrary returns explicit when it names an existing file, and
// otherwise the first library found on SearchDirs.
func ResolveLibrary(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("dex: library %s: %w", explicit, err)
		}
		return explicit, nil
	}
	found := FindLibraries(SearchDirs())
	if len(found) == 0 {
		return "", fmt.Errorf("dex: %s not found; set DEX_LIBRARY or DEX_LIBRARY_PATH", strings.Join(LibraryNames(), " or "))
	}
	return found[0], nil
}
