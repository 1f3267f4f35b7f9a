package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/wysRocket/dao-copilot-sub005/internal/events"
	"github.com/wysRocket/dao-copilot-sub005/internal/storage/models"
	"github.com/wysRocket/dao-copilot-sub005/pkg/logger"
)

const defaultHistoryLimit = 50

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// every connection to :memory: is a separate database
	if strings.Contains(dbPath, ":memory:") {
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analysis_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT UNIQUE NOT NULL,
		text TEXT NOT NULL,
		is_question INTEGER NOT NULL,
		confidence REAL,
		question_type TEXT,
		sub_type TEXT,
		fast_path INTEGER DEFAULT 0,
		cache_hit INTEGER DEFAULT 0,
		latency_us INTEGER,
		result TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analysis_created ON analysis_log(created_at);
	CREATE INDEX IF NOT EXISTS idx_analysis_type ON analysis_log(question_type);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertAnalysis(ctx context.Context, rec *models.AnalysisRecord) error {
	query := `
		INSERT INTO analysis_log (event_id, text, is_question, confidence, question_type, sub_type,
			fast_path, cache_hit, latency_us, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`

	res, err := c.db.ExecContext(ctx,
		query,
		rec.EventID,
		rec.Text,
		boolInt(rec.IsQuestion),
		rec.Confidence,
		rec.QuestionType,
		rec.SubType,
		boolInt(rec.FastPath),
		boolInt(rec.CacheHit),
		rec.LatencyUS,
		rec.Result,
		rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}

	logger.Debug("Analysis recorded",
		zap.String("event_id", rec.EventID),
		zap.Bool("is_question", rec.IsQuestion),
		zap.Float64("confidence", rec.Confidence),
	)
	return nil
}

// RecentAnalyses returns the newest records first.
func (c *Client) RecentAnalyses(ctx context.Context, f models.HistoryFilter) ([]models.AnalysisRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.QuestionsOnly {
		where = append(where, "is_question = 1")
	}
	if f.QuestionType != "" {
		where = append(where, "question_type = ?")
		args = append(args, f.QuestionType)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UnixMilli())
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := `
		SELECT id, event_id, text, is_question, confidence, question_type, sub_type,
			fast_path, cache_hit, latency_us, result, created_at
		FROM analysis_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis history: %w", err)
	}
	defer rows.Close()

	records := []models.AnalysisRecord{}
	for rows.Next() {
		var (
			r                         models.AnalysisRecord
			isQuestion, fastPath, hit int
			qType, subType, result    sql.NullString
			confidence                sql.NullFloat64
			latency                   sql.NullInt64
			createdAt                 int64
		)

		err := rows.Scan(&r.ID, &r.EventID, &r.Text, &isQuestion, &confidence, &qType, &subType,
			&fastPath, &hit, &latency, &result, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.IsQuestion = isQuestion == 1
		r.FastPath = fastPath == 1
		r.CacheHit = hit == 1
		r.Confidence = confidence.Float64
		r.QuestionType = qType.String
		r.SubType = subType.String
		r.Result = result.String
		r.LatencyUS = latency.Int64
		r.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, r)
	}

	return records, rows.Err()
}

// CountByType aggregates detected questions since the given time.
func (c *Client) CountByType(ctx context.Context, since time.Time) ([]models.TypeCount, error) {
	query := `
		SELECT question_type, COUNT(*), AVG(confidence)
		FROM analysis_log
		WHERE is_question = 1 AND created_at >= ?
		GROUP BY question_type
		ORDER BY COUNT(*) DESC, question_type
	`

	rows, err := c.db.QueryContext(ctx, query, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to count question types: %w", err)
	}
	defer rows.Close()

	counts := []models.TypeCount{}
	for rows.Next() {
		var tc models.TypeCount
		if err := rows.Scan(&tc.QuestionType, &tc.Count, &tc.AvgConf); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		counts = append(counts, tc)
	}

	return counts, rows.Err()
}

// Prune deletes records older than before.
func (c *Client) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM analysis_log WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune analysis log: %w", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		logger.Info("Analysis log pruned", zap.Int64("removed", n))
	}
	return n, nil
}

// RecordFromEvent converts a completed analysis event into a log row. It
// reports false for every other event kind.
func RecordFromEvent(e events.Event) (*models.AnalysisRecord, bool) {
	if e.Kind != events.AnalysisCompleted {
		return nil, false
	}

	rec := &models.AnalysisRecord{
		EventID:   e.ID,
		Text:      e.Text,
		FastPath:  e.FastPath,
		CacheHit:  e.CacheHit,
		LatencyUS: e.Duration.Microseconds(),
		CreatedAt: e.Time,
	}
	if e.Result != nil {
		rec.IsQuestion = e.Result.IsQuestion
		rec.Confidence = e.Result.Confidence
		rec.QuestionType = string(e.Result.QuestionType)
		rec.SubType = e.Result.SubType
		if payload, err := json.Marshal(e.Result); err == nil {
			rec.Result = string(payload)
		}
	}
	return rec, true
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
