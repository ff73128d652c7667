package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"edital-assistant/internal/config"
	"edital-assistant/internal/helper"
	"edital-assistant/internal/models"
)

// Exchange is one archived question/answer cycle. Sources holds chunk ids,
// never document text.
type Exchange struct {
	bun.BaseModel `bun:"table:exchanges,alias:e"`
	ID            string         `bun:"id,pk"`
	SessionID     string         `bun:"session_id,notnull"`
	Question      string         `bun:"question,notnull"`
	Query         string         `bun:"query,notnull"`
	Answer        string         `bun:"answer,notnull"`
	Sources       pq.StringArray `bun:"sources,type:text[]"`
	CreatedAt     time.Time      `bun:"created_at,notnull"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg *config.DatabaseConfig) *sql.DB {
	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...))
}

func InitDB(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*Exchange)(nil)).IfNotExists().Exec(ctx)
	return err
}

// Archive records completed exchanges in postgres.
type Archive struct {
	db *bun.DB
}

// OpenArchive connects, checks the connection and creates the table.
func OpenArchive(ctx context.Context, cfg *config.DatabaseConfig) (*Archive, error) {
	db := NewDB(ConnectDB(cfg), cfg.Debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to archive database: %w", err)
	}
	if err := InitDB(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create exchanges table: %w", err)
	}
	log.Info().Msg("Transcript archive ready")
	return &Archive{db: db}, nil
}

func (a *Archive) Record(ctx context.Context, sessionID string, ans *models.Answer) error {
	ex, err := NewExchange(sessionID, ans)
	if err != nil {
		return err
	}
	_, err = a.db.NewInsert().Model(ex).Exec(ctx)
	return err
}

func (a *Archive) Close() error {
	return a.db.Close()
}

func NewExchange(sessionID string, ans *models.Answer) (*Exchange, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	sources := make(pq.StringArray, len(ans.Sources))
	for i, s := range ans.Sources {
		sources[i] = helper.ChunkID(s.Index)
	}
	return &Exchange{
		ID:        id,
		SessionID: sessionID,
		Question:  ans.Question,
		Query:     ans.Query,
		Answer:    ans.Content,
		Sources:   sources,
		CreatedAt: time.Now().UTC(),
	}, nil
}
