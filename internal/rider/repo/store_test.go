package repo

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	query := `UPDATE delivery_requests SET assigned_rider = ? WHERE id = ? AND status = ?`
	assert.Equal(t, query, rebind(DialectMySQL, query))
	assert.Equal(t,
		`UPDATE delivery_requests SET assigned_rider = $1 WHERE id = $2 AND status = $3`,
		rebind(DialectPostgres, query))
	assert.Equal(t, `SELECT 1`, rebind(DialectPostgres, `SELECT 1`))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?,?,?", placeholders(3))
}

func TestNewRejectsUnknownDialect(t *testing.T) {
	_, err := New(nil, "sqlite")
	require.Error(t, err)

	s, err := New(nil, DialectPostgres)
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, s.Dialect())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgerrcode.UniqueViolation})))
	assert.True(t, IsUniqueViolation(&mysql.MySQLError{Number: 1062}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization", &pgconn.PgError{Code: pgerrcode.SerializationFailure}, true},
		{"pg deadlock", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}, true},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, true},
		{"mysql lock wait", &mysql.MySQLError{Number: 1205}, true},
		{"bad conn", fmt.Errorf("exec: %w", driver.ErrBadConn), true},
		{"refused", errors.New("dial tcp: connection refused"), true},
		{"cancelled", context.Canceled, false},
		{"unique", &mysql.MySQLError{Number: 1062}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	for _, dialect := range []string{DialectMySQL, DialectPostgres} {
		data, err := migrationsFS.ReadFile("migrations/" + dialect + "/00001_init.sql")
		require.NoError(t, err, dialect)
		assert.Contains(t, string(data), "-- +goose Up")
		assert.Contains(t, string(data), "rider_withdrawals")
	}
}

func TestMySQLDSNParsesTime(t *testing.T) {
	dsn, err := mysqlDSN("rider:secret@tcp(127.0.0.1:3306)/delivery?charset=utf8mb4")
	require.NoError(t, err)

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, "delivery", cfg.DBName)
	assert.Equal(t, "rider", cfg.User)
	assert.Contains(t, dsn, "charset=utf8mb4")

	_, err = mysqlDSN("not a dsn")
	assert.Error(t, err)
}
