package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(FS, ".")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestInitMigrationCreatesTables(t *testing.T) {
	data, err := fs.ReadFile(FS, "001_init.up.sql")
	require.NoError(t, err)

	sql := string(data)
	for _, table := range []string{"documents", "events", "folders", "api_keys"} {
		assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS "+table)
	}
}
