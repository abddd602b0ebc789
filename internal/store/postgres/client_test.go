package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/lob?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "lob", User: "u", Password: "p"}))
	assert.Equal(t, "postgres://u:p@db:6543/lob?sslmode=require",
		DSN(ClientConfig{Host: "db", Port: 6543, Database: "lob", User: "u", Password: "p", SSLMode: "require"}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}

func TestPaginate(t *testing.T) {
	since := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	q, args := paginate("SELECT 1 FROM t WHERE 1=1", domain.ListOpts{Since: &since, Limit: 10, Offset: 20})
	assert.Equal(t, "SELECT 1 FROM t WHERE 1=1 AND created_at >= $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3", q)
	require.Len(t, args, 3)
	assert.Equal(t, since, args[0])
	assert.Equal(t, 10, args[1])
	assert.Equal(t, 20, args[2])

	q, args = paginate("SELECT 1 FROM t WHERE 1=1", domain.ListOpts{})
	assert.Equal(t, "SELECT 1 FROM t WHERE 1=1 ORDER BY created_at DESC", q)
	assert.Empty(t, args)
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql"}, names)
}
