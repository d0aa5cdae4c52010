package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"testing"
)

var migrationName = regexp.MustCompile(`^(\d{4})_[a-z0-9_]+\.(up|down)\.sql$`)

func migrationsDir() string {
	return filepath.Join("..", "..", "db", "migrations")
}

func TestMigrationsArePairedAndContiguous(t *testing.T) {
	entries, err := os.ReadDir(migrationsDir())
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pairs := map[int]map[string]bool{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationName.FindStringSubmatch(entry.Name())
		if match == nil {
			t.Fatalf("unexpected file in migrations dir: %s", entry.Name())
		}
		version, _ := strconv.Atoi(match[1])
		if pairs[version] == nil {
			pairs[version] = map[string]bool{}
		}
		if pairs[version][match[2]] {
			t.Fatalf("duplicate %s migration for version %04d", match[2], version)
		}
		pairs[version][match[2]] = true
	}
	if len(pairs) == 0 {
		t.Fatal("no migrations discovered")
	}

	versions := make([]int, 0, len(pairs))
	for version, dirs := range pairs {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %04d must include both up and down files", version)
		}
		versions = append(versions, version)
	}
	sort.Ints(versions)
	for i, version := range versions {
		if version != i+1 {
			t.Fatalf("versions must run 0001..%04d without gaps, found %s", len(versions), fmt.Sprint(versions))
		}
	}
}
