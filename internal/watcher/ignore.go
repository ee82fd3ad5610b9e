package watcher

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/mirrorbox/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is read from the root of each watched tree.
const IgnoreFileName = ".mirrorignore"

var defaultIgnoreLines = []string{
	// build output and dependencies at the top level
	"/out",
	"/node_modules",
	"/package-lock.json",
	// anywhere in the tree
	".ropeproject/",
	"__pycache__/",
	".ipynb_checkpoints/",
	// in-flight writes
	"*" + utils.TempSuffix,
	IgnoreFileName,
}

type IgnoreList struct {
	baseDir string
	extra   []string
	ignore  *gitignore.GitIgnore
}

// NewIgnoreList creates an ignore list for baseDir. extra lines are appended
// after the defaults and before the rules from the ignore file.
func NewIgnoreList(baseDir string, extra ...string) *IgnoreList {
	return &IgnoreList{baseDir: baseDir, extra: extra}
}

func (s *IgnoreList) Load() {
	ignoreLines := append([]string{}, defaultIgnoreLines...)
	ignoreLines = append(ignoreLines, s.extra...)

	ignorePath := filepath.Join(s.baseDir, IgnoreFileName)
	if utils.FileExists(ignorePath) {
		ignoreLines = append(ignoreLines, readIgnoreFile(ignorePath)...)
	}

	s.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

func readIgnoreFile(path string) []string {
	file, err := os.Open(path)
	if err != nil {
		slog.Warn("failed to open ignore file", "path", path, "error", err)
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		slog.Warn("error reading ignore file", "path", path, "error", err)
	} else {
		slog.Info("loaded ignore file", "path", path, "rules", len(lines))
	}
	return lines
}

// ShouldIgnore accepts absolute paths under baseDir or paths relative to it.
// Absolute paths outside baseDir are never ignored.
func (s *IgnoreList) ShouldIgnore(path string) bool {
	rel, ok := s.relPath(path)
	if !ok {
		return false
	}
	return s.ignore.MatchesPath(rel)
}

// ShouldIgnoreDir also honours directory-only rules such as "__pycache__/".
func (s *IgnoreList) ShouldIgnoreDir(path string) bool {
	rel, ok := s.relPath(path)
	if !ok {
		return false
	}
	return s.ignore.MatchesPath(rel) || s.ignore.MatchesPath(rel+"/")
}

func (s *IgnoreList) relPath(path string) (string, bool) {
	if s.ignore == nil {
		return "", false
	}

	rel := path
	if filepath.IsAbs(path) {
		var err error
		rel, err = filepath.Rel(s.baseDir, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", false
		}
	}
	if rel == "." || rel == "" {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
