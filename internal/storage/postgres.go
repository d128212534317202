package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/IshaanNene/wbscrape/internal/types"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS products (
	id                SERIAL PRIMARY KEY,
	product_index     INTEGER   NOT NULL,
	url               TEXT      NOT NULL,
	article_id        TEXT      UNIQUE,
	brand             TEXT,
	name              TEXT,
	price             INTEGER,
	color             TEXT,
	diaper_type       TEXT,
	unit_count        TEXT,
	weight_category   TEXT,
	producing_country TEXT,
	overall_size      TEXT,
	description       TEXT,
	scraped_at        TIMESTAMP NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS reviews (
	id              SERIAL PRIMARY KEY,
	product_ref     TEXT    NOT NULL,
	product_index   INTEGER NOT NULL,
	author_name     TEXT,
	review_date     DATE,
	review_time     TIME,
	timezone_offset TEXT,
	rating          SMALLINT,
	review_text     TEXT,
	photo_urls      TEXT[]  NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_reviews_product_ref ON reviews (product_ref);
`

// PostgresSink writes products and reviews to PostgreSQL tables.
type PostgresSink struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresSink opens dsn, pings the server and creates the tables when absent.
func NewPostgresSink(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, &types.StorageError{Backend: "postgres", Err: fmt.Errorf("open: %w", err)}
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &types.StorageError{Backend: "postgres", Err: fmt.Errorf("ping: %w", err)}
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, &types.StorageError{Backend: "postgres", Err: fmt.Errorf("create tables: %w", err)}
	}

	return &PostgresSink{db: db, logger: logger.With("component", "postgres_sink")}, nil
}

func (s *PostgresSink) Name() string { return "postgres" }

// AppendProduct inserts rec; a product whose article ID is already stored is skipped.
func (s *PostgresSink) AppendProduct(ctx context.Context, rec *types.ProductRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (product_index, url, article_id, brand, name, price, color, diaper_type,
			unit_count, weight_category, producing_country, overall_size, description, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (article_id) DO NOTHING`,
		rec.Index, rec.URL, rec.ArticleID, rec.Brand, rec.Name, rec.Price, rec.Color, rec.DiaperType,
		rec.UnitCount, rec.WeightCategory, rec.ProducingCountry, rec.OverallSize, rec.Description,
		rec.ScrapedAt,
	)
	if err != nil {
		return &types.StorageError{Backend: "postgres", Err: fmt.Errorf("insert product: %w", err)}
	}
	return nil
}

// AppendReviews inserts recs in one transaction.
func (s *PostgresSink) AppendReviews(ctx context.Context, recs []*types.ReviewRecord) (err error) {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &types.StorageError{Backend: "postgres", Err: fmt.Errorf("begin: %w", err)}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reviews (product_ref, product_index, author_name, review_date, review_time,
			timezone_offset, rating, review_text, photo_urls)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return &types.StorageError{Backend: "postgres", Err: fmt.Errorf("prepare: %w", err)}
	}
	defer stmt.Close()

	for _, r := range recs {
		photos := r.PhotoURLs
		if photos == nil {
			photos = []string{}
		}
		if _, err = stmt.ExecContext(ctx,
			r.ProductRef, r.ProductIndex, r.AuthorName, r.Date, r.Time,
			r.TimezoneOffset, r.Rating, r.ReviewText, pq.Array(photos),
		); err != nil {
			return &types.StorageError{Backend: "postgres", Err: fmt.Errorf("insert review: %w", err)}
		}
	}

	if err = tx.Commit(); err != nil {
		return &types.StorageError{Backend: "postgres", Err: fmt.Errorf("commit: %w", err)}
	}
	s.logger.Debug("reviews stored in postgres", "count", len(recs))
	return nil
}

func (s *PostgresSink) Close() error {
	return s.db.Close()
}
