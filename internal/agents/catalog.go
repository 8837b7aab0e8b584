// Package agents implements the built-in capabilities the orchestrator routes
// to: system diagnostics, HA test planning, and HA test execution.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opsgate/sapguard/internal/domain/testplan"
	"github.com/opsgate/sapguard/internal/port/cache"
)

// catalogFile is the on-disk shape of one catalog YAML document.
type catalogFile struct {
	Tests []catalogTest `yaml:"tests"`
}

type catalogTest struct {
	TestID      string   `yaml:"test_id" json:"test_id"`
	TestName    string   `yaml:"test_name" json:"test_name"`
	TestGroup   string   `yaml:"test_group" json:"test_group"`
	Description string   `yaml:"description" json:"description"`
	Destructive bool     `yaml:"destructive" json:"destructive"`
	Requires    []string `yaml:"requires" json:"requires,omitempty"`
}

// CatalogLoader reads the HA test catalog from a directory of YAML files and
// keeps the parsed result in the L1 cache between reloads.
type CatalogLoader struct {
	dir   string
	cache cache.Cache
	ttl   time.Duration
	log   *slog.Logger
}

// NewCatalogLoader creates a loader for the given catalog directory. cache may
// be nil; every Load then hits the filesystem.
func NewCatalogLoader(dir string, c cache.Cache, ttl time.Duration, log *slog.Logger) *CatalogLoader {
	if log == nil {
		log = slog.Default()
	}
	return &CatalogLoader{dir: dir, cache: c, ttl: ttl, log: log}
}

// Load returns every catalog entry, sorted by test id. Results come from the
// cache when fresh; a cache miss parses all .yaml/.yml files under the
// catalog directory.
func (l *CatalogLoader) Load(ctx context.Context) ([]testplan.PlannedTest, error) {
	key := "catalog:" + l.dir

	if l.cache != nil {
		if data, ok, err := l.cache.Get(ctx, key); err == nil && ok {
			var tests []testplan.PlannedTest
			if err := json.Unmarshal(data, &tests); err == nil {
				return tests, nil
			}
			// A corrupt cache entry is dropped and reloaded from disk.
			_ = l.cache.Delete(ctx, key)
		}
	}

	tests, err := l.loadDir()
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		if data, err := json.Marshal(tests); err == nil {
			if err := l.cache.Set(ctx, key, data, l.ttl); err != nil {
				l.log.Warn("cache catalog", "error", err)
			}
		}
	}
	return tests, nil
}

func (l *CatalogLoader) loadDir() ([]testplan.PlannedTest, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog dir %s: %w", l.dir, err)
	}

	seen := make(map[string]string)
	var tests []testplan.PlannedTest

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(l.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog file %s: %w", path, err)
		}

		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
		}

		for _, t := range file.Tests {
			if t.TestID == "" {
				return nil, fmt.Errorf("catalog file %s: entry without test_id", path)
			}
			if prev, dup := seen[t.TestID]; dup {
				return nil, fmt.Errorf("catalog: duplicate test id %q in %s (already in %s)", t.TestID, path, prev)
			}
			seen[t.TestID] = path

			tests = append(tests, testplan.PlannedTest{
				TestID:      t.TestID,
				TestName:    t.TestName,
				TestGroup:   t.TestGroup,
				Description: t.Description,
				Destructive: t.Destructive,
				Requires:    t.Requires,
			})
		}
	}

	sort.Slice(tests, func(i, j int) bool { return tests[i].TestID < tests[j].TestID })
	l.log.Info("catalog loaded", "dir", l.dir, "tests", len(tests))
	return tests, nil
}
