// Package config locates the CLI's API endpoint and its local state: the saved
// token, the pending undo and the user's own categories.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const defaultAPIURL = "http://localhost:8080"

// DefaultCategories are always offered, in this order.
var DefaultCategories = []string{"Food", "Transport", "Entertainment"}

// APIURL returns the base URL for the spendflow API.
// It can be overridden with the SPENDFLOW_API_URL environment variable.
func APIURL() string {
	if v := os.Getenv("SPENDFLOW_API_URL"); v != "" {
		return strings.TrimRight(v, "/")
	}
	return defaultAPIURL
}

// StateDir is where the CLI keeps its files: SPENDFLOW_HOME, else ~/.spendflow.
func StateDir() string {
	if v := os.Getenv("SPENDFLOW_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".spendflow"
	}
	return filepath.Join(home, ".spendflow")
}

func tokenPath() string { return filepath.Join(StateDir(), "token") }
func categoriesPath() string { return filepath.Join(StateDir(), "categories.json") }

// UndoPath is the file holding the pending undo.
func UndoPath() string { return filepath.Join(StateDir(), "undo.json") }

// ==========================
// Token
// ==========================

// SaveToken stores the bearer token readable only by the current user.
func SaveToken(token string) error {
	if err := os.MkdirAll(StateDir(), 0o700); err != nil {
		return err
	}
	return os.WriteFile(tokenPath(), []byte(token), 0o600)
}

// ErrNotLoggedIn is returned by ReadToken when no token is saved.
var ErrNotLoggedIn = errors.New("not logged in: run `spendflow login` first")

func ReadToken() (string, error) {
	data, err := os.ReadFile(tokenPath())
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotLoggedIn
	}
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNotLoggedIn
	}
	return token, nil
}

// ClearToken removes the saved token. A missing token is not an error.
func ClearToken() error {
	if err := os.Remove(tokenPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ==========================
// Categories
// ==========================

// SavedCategories returns the user's own categories, sorted case-insensitively.
func SavedCategories() ([]string, error) {
	data, err := os.ReadFile(categoriesPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var saved []string
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("read categories: %w", err)
	}
	return saved, nil
}

// Categories returns the defaults followed by the saved categories.
func Categories() ([]string, error) {
	saved, err := SavedCategories()
	if err != nil {
		return nil, err
	}
	return append(append([]string{}, DefaultCategories...), saved...), nil
}

// RememberCategory saves name unless it matches a known category ignoring case.
// It reports whether name was new.
func RememberCategory(name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, nil
	}
	all, err := Categories()
	if err != nil {
		return false, err
	}
	for _, c := range all {
		if strings.EqualFold(c, name) {
			return false, nil
		}
	}

	saved := append(all[len(DefaultCategories):], name)
	sort.Slice(saved, func(i, j int) bool { return strings.ToLower(saved[i]) < strings.ToLower(saved[j]) })

	data, err := json.Marshal(saved)
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(StateDir(), 0o700); err != nil {
		return false, err
	}
	return true, os.WriteFile(categoriesPath(), data, 0o600)
}

// ClearState removes every local file, used after the account is deleted.
func ClearState() error {
	for _, p := range []string{tokenPath(), UndoPath(), categoriesPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
