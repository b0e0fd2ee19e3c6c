package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mcdev12/leancoffee/internal/models"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS boards (
	id         UUID PRIMARY KEY,
	title      TEXT NOT NULL,
	stage      TEXT NOT NULL DEFAULT 'IDEATION',
	timer_end  TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS topics (
	id         UUID PRIMARY KEY,
	board_id   UUID NOT NULL REFERENCES boards(id),
	title      TEXT NOT NULL,
	votes      INTEGER NOT NULL DEFAULT 0,
	discussed  BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS topics_board_id_idx ON topics(board_id);
`

// PostgresStore persists boards and topics in Postgres. Vote increments
// are serialized by the database (votes = votes + 1), never computed from
// an application-side read.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to Postgres, verifies connectivity and
// bootstraps the schema.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(pgSchema); err != nil {
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateBoard(ctx context.Context, title string) (*models.Board, error) {
	board := models.Board{
		ID:     uuid.New(),
		Title:  title,
		Stage:  models.StageIdeation,
		Topics: []models.Topic{},
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO boards(id, title) VALUES($1, $2) RETURNING created_at`,
		board.ID, title,
	).Scan(&board.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create board: %w", err)
	}
	return &board, nil
}

func (s *PostgresStore) GetBoard(ctx context.Context, id uuid.UUID) (*models.Board, error) {
	var board models.Board
	var timerEnd sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, stage, timer_end, created_at FROM boards WHERE id = $1`, id,
	).Scan(&board.ID, &board.Title, &board.Stage, &timerEnd, &board.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get board: %w", err)
	}
	if timerEnd.Valid {
		t := timerEnd.Time
		board.TimerEnd = &t
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, board_id, title, votes, discussed, created_at
		 FROM topics WHERE board_id = $1
		 ORDER BY votes DESC, created_at ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	board.Topics = []models.Topic{}
	for rows.Next() {
		var t models.Topic
		if err := rows.Scan(&t.ID, &t.BoardID, &t.Title, &t.Votes, &t.Discussed, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		board.Topics = append(board.Topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate topics: %w", err)
	}
	return &board, nil
}

func (s *PostgresStore) CreateTopic(ctx context.Context, boardID uuid.UUID, title string) (*models.Topic, error) {
	topic := models.Topic{
		ID:      uuid.New(),
		BoardID: boardID,
		Title:   title,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO topics(id, board_id, title) VALUES($1, $2, $3) RETURNING created_at`,
		topic.ID, boardID, title,
	).Scan(&topic.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to create topic: %w", err)
	}
	return &topic, nil
}

func (s *PostgresStore) GetTopic(ctx context.Context, id uuid.UUID) (*models.Topic, error) {
	var t models.Topic
	err := s.db.QueryRowContext(ctx,
		`SELECT id, board_id, title, votes, discussed, created_at FROM topics WHERE id = $1`, id,
	).Scan(&t.ID, &t.BoardID, &t.Title, &t.Votes, &t.Discussed, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get topic: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) IncrementVote(ctx context.Context, topicID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE topics SET votes = votes + 1 WHERE id = $1`, topicID)
	if err != nil {
		return fmt.Errorf("failed to increment vote: %w", err)
	}
	return checkAffected(res)
}

func (s *PostgresStore) SetDiscussed(ctx context.Context, topicID uuid.UUID, discussed bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE topics SET discussed = $2 WHERE id = $1`, topicID, discussed)
	if err != nil {
		return fmt.Errorf("failed to set discussed: %w", err)
	}
	return checkAffected(res)
}

func (s *PostgresStore) SetStage(ctx context.Context, boardID uuid.UUID, stage models.Stage) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE boards SET stage = $2 WHERE id = $1`, boardID, string(stage))
	if err != nil {
		return fmt.Errorf("failed to set stage: %w", err)
	}
	return checkAffected(res)
}

func (s *PostgresStore) SetTimer(ctx context.Context, boardID uuid.UUID, timerEnd *time.Time) error {
	var v sql.NullTime
	if timerEnd != nil {
		v = sql.NullTime{Time: timerEnd.UTC(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE boards SET timer_end = $2 WHERE id = $1`, boardID, v)
	if err != nil {
		return fmt.Errorf("failed to set timer: %w", err)
	}
	return checkAffected(res)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
