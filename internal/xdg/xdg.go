// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package xdg resolves the XDG Base Directory locations pgmulti uses: the
// config dir for the flow file and the state dir for the encrypted file
// keyring. Directories are created on first use with 0700 permissions.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "pgmulti"

// ConfigDir returns $XDG_CONFIG_HOME/pgmulti, or ~/.config/pgmulti.
func ConfigDir() (string, error) {
	return appDir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns $XDG_STATE_HOME/pgmulti, or ~/.local/state/pgmulti.
func StateDir() (string, error) {
	return appDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// KeyringDir returns the directory of the encrypted file keyring backend,
// under the state dir.
func KeyringDir() (string, error) {
	state, err := StateDir()
	if err != nil {
		return "", err
	}
	return ensure(filepath.Join(state, "keyring"))
}

// appDir resolves base from env, or from home-relative fallback when env is
// unset or not absolute, and appends the app name.
func appDir(env, fallback string) (string, error) {
	base := os.Getenv(env)
	if base == "" || !filepath.IsAbs(base) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, fallback)
	}
	return ensure(filepath.Join(base, appName))
}

func ensure(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
