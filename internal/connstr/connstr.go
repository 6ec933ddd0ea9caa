// SPDX-License-Identifier: Apache-2.0

package connstr

import (
	"fmt"
	"net/url"
	"strings"
)

// AppendSearchPathOption takes a Postgres connection string in URL format and
// produces the same connection string with the search_path option set to the
// provided schema.
func AppendSearchPathOption(connStr, schema string) (string, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse connection string: %w", err)
	}

	if schema == "" {
		return connStr, nil
	}

	q := u.Query()
	q.Set("options", fmt.Sprintf("-c search_path=%s", schema))
	encodedQuery := q.Encode()

	// Replace '+' with '%20' to ensure proper encoding of spaces within the
	// `options` query parameter.
	encodedQuery = strings.ReplaceAll(encodedQuery, "+", "%20")

	u.RawQuery = encodedQuery

	return u.String(), nil
}

// WithDatabase takes a Postgres connection string in URL format and produces
// the same connection string pointing at a different database.
func WithDatabase(connStr, database string) (string, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse connection string: %w", err)
	}

	u.Path = "/" + database

	return u.String(), nil
}

// Metadata is the public part of a connection string: safe to log and to
// attach to errors. Credentials never appear here.
type Metadata struct {
	Host     string
	Port     string
	Database string
}

func (m Metadata) String() string {
	if m.Database == "" {
		return m.Host + ":" + m.Port
	}
	return fmt.Sprintf("%s:%s/%s", m.Host, m.Port, m.Database)
}

// Parse extracts the public metadata from a connection string in URL format.
func Parse(connStr string) (Metadata, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to parse connection string: %w", err)
	}

	port := u.Port()
	if port == "" {
		port = "5432"
	}

	return Metadata{
		Host:     u.Hostname(),
		Port:     port,
		Database: strings.TrimPrefix(u.Path, "/"),
	}, nil
}

// Database returns the database name the connection string points at.
func Database(connStr string) (string, error) {
	m, err := Parse(connStr)
	if err != nil {
		return "", err
	}
	return m.Database, nil
}
