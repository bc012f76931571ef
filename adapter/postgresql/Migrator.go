package postgresql

import (
	"context"
	"fmt"

	"go.llib.dev/frameless/pkg/logger"
	"go.llib.dev/frameless/pkg/logging"
)

const queryCreateDocumentTable = `CREATE TABLE IF NOT EXISTS %s (
	id         TEXT        NOT NULL PRIMARY KEY,
	doc        JSONB       NOT NULL,
	seq        BIGSERIAL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// Migrate ensures that every document table exists.
func Migrate(ctx context.Context, conn *Connection, tables ...string) error {
	for _, table := range tables {
		if _, err := conn.Exec(ctx, fmt.Sprintf(queryCreateDocumentTable, quoteIdent(table))); err != nil {
			return fmt.Errorf("migrate %s: %w", table, err)
		}
		logger.Debug(ctx, "document table ensured", logging.Field("table", table))
	}
	return nil
}
