package internal

import (
	"io/fs"
	"testing"

	"github.com/dukerupert/tally/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(migrations.MigrationsFS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for i, name := range files {
		assert.Regexp(t, `^\d{5}_[a-z0-9_]+\.sql$`, name)
		if i > 0 {
			assert.Less(t, files[i-1], name)
		}

		body, err := fs.ReadFile(migrations.MigrationsFS, name)
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", name)
		assert.Contains(t, string(body), "-- +goose Down", name)
	}
}
