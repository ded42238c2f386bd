package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPostgresDSNFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PG_HOST", "db")
	t.Setenv("PG_PORT", "")
	t.Setenv("PG_USER", "geo")
	t.Setenv("PG_PASSWORD", "secret")
	t.Setenv("PG_DB", "")
	t.Setenv("PG_SSLMODE", "")
	assert.Equal(t, "postgres://geo:secret@db:5432/geoname?sslmode=disable", BuildPostgresDSNFromEnv())

	t.Setenv("DATABASE_URL", "postgres://x@y/z")
	assert.Equal(t, "postgres://x@y/z", BuildPostgresDSNFromEnv())
}

func TestEnvInt(t *testing.T) {
	t.Setenv("X_N", "12")
	assert.Equal(t, 12, envInt("X_N", 3))
	t.Setenv("X_N", "-1")
	assert.Equal(t, 3, envInt("X_N", 3))
	t.Setenv("X_N", "abc")
	assert.Equal(t, 3, envInt("X_N", 3))
}

func TestOpenRedisFromEnvDisabled(t *testing.T) {
	t.Setenv("REDIS_HOST", "")
	assert.Nil(t, OpenRedisFromEnv())
}
