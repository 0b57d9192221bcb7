// cmd/migrate/main.go
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS delivery_attempts (
    id              BIGSERIAL PRIMARY KEY,
    campaign_id     TEXT        NOT NULL,
    recipient_index INTEGER     NOT NULL,
    recipient       TEXT        NOT NULL,
    outcome         TEXT        NOT NULL,
    detail          TEXT        NOT NULL DEFAULT '',
    attempts        INTEGER     NOT NULL DEFAULT 1,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_delivery_attempts_campaign
    ON delivery_attempts (campaign_id, recipient_index);
`

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}

	fmt.Println("Migration completed successfully!")
}
