package database

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationFiles returns the names of the embedded migrations with the given suffix
// ("up.sql" or "down.sql"), in version order.
func migrationFiles(suffix string) ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), "."+suffix) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	return names, nil
}

func readMigration(name string) ([]byte, error) {
	return migrationsFS.ReadFile(path.Join("migrations", name))
}

// MigrationsTempDir writes the embedded resolution migrations to a new temporary directory for
// golang-migrate's file source. The caller removes the directory.
func MigrationsTempDir() (string, error) {
	tmpDir, err := os.MkdirTemp("", "txconfirm-migrations-*")
	if err != nil {
		return "", err
	}

	for _, suffix := range []string{"up.sql", "down.sql"} {
		names, err := migrationFiles(suffix)
		if err != nil {
			os.RemoveAll(tmpDir)
			return "", err
		}

		for _, name := range names {
			content, err := readMigration(name)
			if err != nil {
				os.RemoveAll(tmpDir)
				return "", err
			}

			if err := os.WriteFile(filepath.Join(tmpDir, name), content, 0600); err != nil {
				os.RemoveAll(tmpDir)
				return "", err
			}
		}
	}

	return tmpDir, nil
}
