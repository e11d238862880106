package db

import (
	"fmt"
	"net/url"
	"strings"
)

// WithDBName returns a DSN identical to the input but with the database path replaced.
// Supports postgres:// and postgresql:// schemes; SQLite paths are returned unchanged.
func WithDBName(dsn, database string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("empty DSN")
	}
	if database == "" {
		return dsn, nil
	}
	if driver, _ := Driver(dsn); driver != DriverPostgres {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(database, "/") {
		u.Path = "/" + database
	} else {
		u.Path = database
	}
	return u.String(), nil
}
