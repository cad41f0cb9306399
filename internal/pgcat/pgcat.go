// Package pgcat runs catalog-level queries against the server's
// maintenance database. Only pg_database and pg_stat_activity are
// touched here, with names bound as query parameters; everything that
// moves user data goes through the native client tools instead.
package pgcat

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/lupppig/pgpair/internal/config"
	apperrors "github.com/lupppig/pgpair/internal/errors"
)

// maintenanceDB is the database every reachable server is guaranteed to
// have; all catalog queries run against it so they never depend on the
// instance being operated on.
const maintenanceDB = "postgres"

const dialTimeout = 5 * time.Second

type Catalog struct {
	db *sql.DB
}

// Open connects to the maintenance database and verifies the server is
// reachable.
func Open(ctx context.Context, conn config.Conn) (*Catalog, error) {
	db, err := sql.Open("postgres", dsn(conn))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeConnection, "failed to open connection", "")
	}

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, apperrors.TypeConnection,
			fmt.Sprintf("failed to reach %s:%d as %s", conn.Host, conn.Port, conn.User),
			"Check the connection parameters and that the server is running.")
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Ping re-checks the server without touching any database.
func (c *Catalog) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := c.db.PingContext(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.TypeConnection, "failed to ping server", "")
	}
	return nil
}

// Exists reports whether a database with the given name exists.
func (c *Catalog) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.TypeConnection,
			fmt.Sprintf("failed to check for database %s", name), "")
	}
	return exists, nil
}

// TerminateConnections kicks every session connected to the named
// database except our own and returns how many were terminated. Drop
// and restore fail with "database is being accessed by other users"
// without this.
func (c *Catalog) TerminateConnections(ctx context.Context, name string) (int, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT pg_terminate_backend(pid) FROM pg_stat_activity
		 WHERE datname = $1 AND pid <> pg_backend_pid()`, name)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.TypeConnection,
			fmt.Sprintf("failed to terminate connections to %s", name),
			"The configured user may lack the pg_signal_backend role.")
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var terminated bool
		if err := rows.Scan(&terminated); err != nil {
			return n, apperrors.Wrap(err, apperrors.TypeInternal, "failed to read termination result", "")
		}
		if terminated {
			n++
		}
	}
	return n, rows.Err()
}

// dsn builds a maintenance-database connection URL. sslmode follows
// PGSSLMODE when set; lib/pq otherwise defaults to require, which is
// wrong for the typical local server, so it falls back to disable.
func dsn(conn config.Conn) string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", conn.Host, conn.Port),
		Path:   maintenanceDB,
	}
	if conn.Password != "" {
		u.User = url.UserPassword(conn.User, conn.Password)
	} else {
		u.User = url.User(conn.User)
	}

	q := u.Query()
	if os.Getenv("PGSSLMODE") == "" {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
