package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryName(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"-- name: GetUserOperation :one\nSELECT 1", "GetUserOperation"},
		{"  select pg_advisory_lock($1)", "SELECT"},
		{"INSERT INTO x VALUES (1)", "INSERT"},
		{"", "unknown"},
		{"-- name:\nUPDATE x", "UPDATE"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, queryName(tt.sql))
		})
	}
}
