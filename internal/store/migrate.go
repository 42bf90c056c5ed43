package store

import (
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/earnings-cli/internal/db"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

// migrationLockID serializes concurrent Postgres migrate runs.
const migrationLockID = 4206931

type migration struct {
	// key identifies the migration per table in schema_migrations.
	key string
	sql string
}

// loadMigrations renders the dialect's migration files for table in
// lexicographic order.
func loadMigrations(d db.Dialect, table string) ([]migration, error) {
	dir := "migrations/postgres"
	if d == db.SQLite {
		dir = "migrations/sqlite"
	}

	entries, err := fs.ReadDir(migrationFS, dir)
	if err != nil {
		return nil, eris.Wrap(err, "store: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	name := table
	if i := strings.LastIndex(table, "."); i >= 0 {
		name = table[i+1:]
	}
	r := strings.NewReplacer("{{table}}", db.QuoteTable(d, table), "{{name}}", name)

	out := make([]migration, 0, len(entries))
	for _, e := range entries {
		data, err := migrationFS.ReadFile(path.Join(dir, e.Name()))
		if err != nil {
			return nil, eris.Wrapf(err, "store: read migration %s", e.Name())
		}
		out = append(out, migration{key: table + "/" + e.Name(), sql: r.Replace(string(data))})
	}
	return out, nil
}
