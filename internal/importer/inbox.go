package importer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Statements wait in <root>/import until they are committed, then move to
// <root>/import/processed.
const (
	inboxDir     = "import"
	processedDir = "processed"
)

// Scan returns the paths of statement CSVs waiting in <root>/import, sorted
// by file name so a directory import always commits in the same order.
// A missing directory means nothing is waiting.
func Scan(root string) ([]string, error) {
	dir := filepath.Join(root, inboxDir)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".csv") {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// MarkProcessed moves a committed statement into <root>/import/processed and
// returns its new path. Banks reuse export names, so a name that is already
// taken gets a numeric suffix instead of overwriting the earlier statement.
func MarkProcessed(root, name string) (string, error) {
	src := filepath.Join(root, inboxDir, name)
	dstDir := filepath.Join(root, inboxDir, processedDir)
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", fmt.Errorf("creating processed dir: %w", err)
	}

	dst, err := freeName(dstDir, name)
	if err != nil {
		return "", err
	}
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("moving %s to processed: %w", name, err)
	}
	return dst, nil
}

// freeName returns dir/name, or dir/<stem>-N<ext> for the first N not in use.
func freeName(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(dir, name)
	for n := 1; ; n++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", candidate, err)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
	}
}
