// Package migrations embeds the SQL schema and applies it in order.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed *.sql
var files embed.FS

// Files lists migration file names with the given suffix in apply order.
func Files(suffix string) ([]string, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Up applies every *.up.sql file. Statements are idempotent.
func Up(ctx context.Context, pool *pgxpool.Pool) error {
	names, err := Files(".up.sql")
	if err != nil {
		return err
	}
	return apply(ctx, pool, names)
}

// Down applies every *.down.sql file in reverse order.
func Down(ctx context.Context, pool *pgxpool.Pool) error {
	names, err := Files(".down.sql")
	if err != nil {
		return err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return apply(ctx, pool, names)
}

func apply(ctx context.Context, pool *pgxpool.Pool, names []string) error {
	for _, name := range names {
		sql, err := files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}
