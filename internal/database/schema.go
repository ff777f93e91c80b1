package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the three tables the gate needs.  override_log has no
// UPDATE or DELETE path anywhere in the code.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tickets (
		id               CHAR(36)     NOT NULL PRIMARY KEY,
		code             VARCHAR(16)  NOT NULL,
		holder_name      VARCHAR(255) NOT NULL,
		holder_contact   VARCHAR(255) NOT NULL DEFAULT '',
		category         ENUM('SINGLE','MULTI') NOT NULL,
		last_redeemed_at DATETIME(6)  NULL,
		invalidated_at   DATETIME(6)  NULL,
		created_at       DATETIME(6)  NOT NULL,
		UNIQUE KEY uq_tickets_code (code),
		KEY idx_tickets_holder_name (holder_name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS ticket_occasions (
		ticket_id   CHAR(36)    NOT NULL,
		occasion    VARCHAR(32) NOT NULL,
		redeemed_at DATETIME(6) NOT NULL,
		PRIMARY KEY (ticket_id, occasion),
		CONSTRAINT fk_occasions_ticket FOREIGN KEY (ticket_id) REFERENCES tickets (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS override_log (
		id            CHAR(36)      NOT NULL PRIMARY KEY,
		ticket_id     CHAR(36)      NOT NULL,
		action        ENUM('FORCE_ADMIT','RESET') NOT NULL,
		justification VARCHAR(1000) NOT NULL,
		operator_id   VARCHAR(64)   NOT NULL,
		occasion      VARCHAR(32)   NOT NULL DEFAULT '',
		created_at    DATETIME(6)   NOT NULL,
		KEY idx_override_ticket_created (ticket_id, created_at),
		CONSTRAINT fk_override_ticket FOREIGN KEY (ticket_id) REFERENCES tickets (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate applies the schema.  Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
