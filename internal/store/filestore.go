// Package store persists extracted case documents and the append-only
// terminal URL logs on the local filesystem.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mpelletier/caselaw-crawler/internal/crawler"
)

// Layout under the store root.
const (
	casesDir   = "cases"
	logsDir    = "logs"
	reportsDir = "reports"
)

// FileStore implements crawler.CaseStore and crawler.ReportSink on disk.
// Case writes are idempotent overwrites, so at-least-once delivery from the
// dispatcher is safe. Log appends are deduplicated against the lines already
// present from prior runs.
type FileStore struct {
	root   string
	clock  crawler.Clock
	logger *zap.Logger

	mu sync.Mutex // serializes log appends
}

// New creates the store rooted at dir, creating the layout if needed.
func New(root string, clock crawler.Clock, logger *zap.Logger) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("store root is required")
	}
	for _, dir := range []string{casesDir, logsDir, reportsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o750); err != nil {
			return nil, fmt.Errorf("create store dir %s: %w", dir, err)
		}
	}
	return &FileStore{root: root, clock: clock, logger: logger}, nil
}

// Exists reports whether a case document is already on disk.
func (s *FileStore) Exists(court, key string) bool {
	info, err := os.Stat(s.casePath(court, key))
	return err == nil && !info.IsDir() && info.Size() > 0
}

// SaveCase writes the extracted text, overwriting any partial leftover from
// an earlier pass.
func (s *FileStore) SaveCase(court, key, text string) error {
	target := s.casePath(court, key)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create court dir: %w", err)
	}
	if err := os.WriteFile(target, []byte(text), 0o600); err != nil {
		return fmt.Errorf("write case %s: %w", key, err)
	}
	return nil
}

// AppendURLLog appends urls to the named log, skipping any line already
// present from this or earlier runs.
func (s *FileStore) AppendURLLog(name string, urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := filepath.Join(s.root, logsDir, name)
	existing, err := readLines(target)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log %s: %w", name, err)
	}
	defer f.Close()

	appended := 0
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, dup := existing[u]; dup {
			continue
		}
		if _, err := fmt.Fprintln(f, u); err != nil {
			return fmt.Errorf("append to log %s: %w", name, err)
		}
		existing[u] = struct{}{}
		appended++
	}
	if appended > 0 {
		s.logger.Debug("Appended URLs to terminal log",
			zap.String("log", name),
			zap.Int("appended", appended),
		)
	}
	return nil
}

// SaveReport writes the run report as indented JSON, one file per run.
func (s *FileStore) SaveReport(report crawler.Report) error {
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	name := fmt.Sprintf("crawl_%s_%s.json",
		s.clock.Now().Format("20060102_150405"), report.RunID)
	target := filepath.Join(s.root, reportsDir, name)
	if err := os.WriteFile(target, payload, 0o600); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func (s *FileStore) casePath(court, key string) string {
	return filepath.Join(s.root, casesDir, court, key+".txt")
}

func readLines(path string) (map[string]struct{}, error) {
	lines := make(map[string]struct{})
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lines, nil
		}
		return nil, fmt.Errorf("read log %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines[line] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan log %s: %w", path, err)
	}
	return lines, nil
}
