// Package cassandra stores the message log in Cassandra, partitioned by
// conversation and clustered by sequence number.
package cassandra

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocql/gocql"
)

//go:embed schema.cql
var schema string

// Migrate creates the tables when they do not exist. CQL runs one statement per query.
func Migrate(session *gocql.Session) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := session.Query(stmt).Exec(); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
