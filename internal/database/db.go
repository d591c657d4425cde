// internal/database/db.go

// Package database persists archived lobby actions to Postgres. Only the
// historian touches the database; the game itself never blocks on it.
//
// Expected schema:
//
//	CREATE TABLE lobbies (
//	    id         TEXT PRIMARY KEY,
//	    status     TEXT NOT NULL,
//	    start_time TIMESTAMPTZ,
//	    end_time   TIMESTAMPTZ
//	);
//	CREATE TABLE lobby_actions (
//	    lobby_id       TEXT NOT NULL,
//	    action_index   INT NOT NULL,
//	    actor_id       TEXT NOT NULL,
//	    action_type    TEXT NOT NULL,
//	    action_payload JSONB,
//	    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    PRIMARY KEY (lobby_id, action_index)
//	);
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nvannier/fictionary/internal/archive"
)

// DB is the global connection pool. Connect it once at startup.
var DB *pgxpool.Pool

// ConnectDB builds the pool from POSTGRES_USER, POSTGRES_PASSWORD, PG_HOST,
// PG_PORT and PG_DATABASE and verifies connectivity.
func ConnectDB() {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		os.Getenv("PG_HOST"),
		os.Getenv("PG_PORT"),
		os.Getenv("PG_DATABASE"),
	)

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		log.Fatalf("unable to parse pgx config: %v", err)
	}

	DB, err = pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		log.Fatalf("unable to create pgx pool: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := DB.Ping(ctx); err != nil {
		log.Fatalf("db ping error: %v", err)
	}
}

// InsertActions persists a batch of action records in one transaction,
// upserting the lobby row as active along the way.
func InsertActions(ctx context.Context, records []archive.ActionRecord) error {
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range records {
			if err := insertActionTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertActionTx: %w", err)
			}
		}
		return nil
	})
}

func insertActionTx(ctx context.Context, tx pgx.Tx, rec archive.ActionRecord) error {
	upsertLobbyQ := `
		INSERT INTO lobbies (id, status, start_time)
		VALUES ($1, 'active', NOW())
		ON CONFLICT (id)
		DO UPDATE SET status = 'active'
	`
	if _, err := tx.Exec(ctx, upsertLobbyQ, rec.LobbyID); err != nil {
		return err
	}

	actionInsertQ := `
		INSERT INTO lobby_actions (
			lobby_id, action_index, actor_id, action_type, action_payload
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (lobby_id, action_index) DO NOTHING
	`
	jsonPayload, err := json.Marshal(rec.ActionPayload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, actionInsertQ,
		rec.LobbyID, rec.ActionIndex, rec.ActorID, rec.ActionType, jsonPayload,
	)
	return err
}

// MarkLobbyAbandoned closes a lobby row that stopped producing actions.
func MarkLobbyAbandoned(ctx context.Context, lobbyID string) error {
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			UPDATE lobbies
			SET status = 'abandoned', end_time = NOW()
			WHERE id = $1 AND status = 'active'
		`
		_, err := tx.Exec(ctx, q, lobbyID)
		return err
	})
}
