package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps each collection in a table of (id, doc jsonb).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Collection returns the collection stored in the table of the same name.
func (s *PostgresStore) Collection(name string) Collection {
	return &pgCollection{
		pool:  s.pool,
		name:  name,
		table: pgx.Identifier{name}.Sanitize(),
	}
}

// Health pings the database and reports pool statistics.
func (s *PostgresStore) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		slog.Error("Database health check failed", "error", err)
		return stats
	}

	poolStats := s.pool.Stat()
	stats["status"] = "up"
	stats["driver"] = "postgres"
	stats["total_connections"] = strconv.Itoa(int(poolStats.TotalConns()))
	stats["idle_connections"] = strconv.Itoa(int(poolStats.IdleConns()))
	stats["acquired_connections"] = strconv.Itoa(int(poolStats.AcquiredConns()))

	if poolStats.AcquiredConns() >= poolStats.MaxConns() {
		stats["message"] = "The database is experiencing heavy load."
	}

	return stats
}

// Close releases every pooled connection.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type pgCollection struct {
	pool  *pgxpool.Pool
	name  string
	table string
}

func (c *pgCollection) wrap(op string, err error) error {
	return &StoreError{Op: op, Collection: c.name, Err: err}
}

func (c *pgCollection) Find(ctx context.Context, filter Filter) ([]Document, error) {
	where, args, err := buildWhere(filter)
	if err != nil {
		return nil, c.wrap("find", err)
	}

	query := fmt.Sprintf(`SELECT id, doc FROM %s WHERE %s ORDER BY created_at, id`, c.table, where)
	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, c.wrap("find", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, c.wrap("find", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, c.wrap("find", err)
	}

	return docs, nil
}

func (c *pgCollection) FindOne(ctx context.Context, filter Filter) (Document, error) {
	where, args, err := buildWhere(filter)
	if err != nil {
		return nil, c.wrap("findOne", err)
	}

	query := fmt.Sprintf(`SELECT id, doc FROM %s WHERE %s ORDER BY created_at, id LIMIT 1`, c.table, where)
	doc, err := scanDocument(c.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoDocuments
	}
	if err != nil {
		return nil, c.wrap("findOne", err)
	}
	return doc, nil
}

func (c *pgCollection) InsertOne(ctx context.Context, doc Document) (InsertResult, error) {
	id := doc.ID()
	if id == "" {
		id = uuid.NewString()
	}

	body, err := encodeBody(doc)
	if err != nil {
		return InsertResult{}, c.wrap("insertOne", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2::jsonb)`, c.table)
	if _, err := c.pool.Exec(ctx, query, id, body); err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		return InsertResult{}, c.wrap("insertOne", err)
	}

	return InsertResult{Acknowledged: true, InsertedID: id}, nil
}

func (c *pgCollection) UpdateOne(ctx context.Context, filter Filter, update Update, opts UpdateOptions) (UpdateResult, error) {
	where, args, err := buildWhere(filter)
	if err != nil {
		return UpdateResult{}, c.wrap("updateOne", err)
	}

	result := UpdateResult{Acknowledged: true}
	err = pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		selectQuery := fmt.Sprintf(`SELECT id, doc FROM %s WHERE %s ORDER BY created_at, id LIMIT 1 FOR UPDATE`, c.table, where)
		current, err := scanDocument(tx.QueryRow(ctx, selectQuery, args...))
		if errors.Is(err, pgx.ErrNoRows) {
			if !opts.Upsert {
				return nil
			}
			return c.upsert(ctx, tx, filter, update, &result)
		}
		if err != nil {
			return err
		}

		result.MatchedCount = 1
		next, changed, err := ApplySet(current, update.Set)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		body, err := encodeBody(next)
		if err != nil {
			return err
		}
		updateQuery := fmt.Sprintf(`UPDATE %s SET doc = $1::jsonb, updated_at = NOW() WHERE id = $2`, c.table)
		if _, err := tx.Exec(ctx, updateQuery, body, current.ID()); err != nil {
			return err
		}
		result.ModifiedCount = 1
		return nil
	})
	if err != nil {
		return UpdateResult{}, c.wrap("updateOne", err)
	}

	return result, nil
}

func (c *pgCollection) upsert(ctx context.Context, tx pgx.Tx, filter Filter, update Update, result *UpdateResult) error {
	seedFilter, err := normalizeFilter(filter)
	if err != nil {
		return err
	}
	doc, _, err := ApplySet(seedFromFilter(seedFilter), update.Set)
	if err != nil {
		return err
	}

	id := doc.ID()
	if id == "" {
		id = uuid.NewString()
	}
	body, err := encodeBody(doc)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2::jsonb)`, c.table)
	if _, err := tx.Exec(ctx, query, id, body); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		return err
	}

	result.UpsertedCount = 1
	result.UpsertedID = &id
	return nil
}

func (c *pgCollection) DeleteOne(ctx context.Context, filter Filter) (DeleteResult, error) {
	where, args, err := buildWhere(filter)
	if err != nil {
		return DeleteResult{}, c.wrap("deleteOne", err)
	}

	query := fmt.Sprintf(
		`DELETE FROM %[1]s WHERE id = (SELECT id FROM %[1]s WHERE %[2]s ORDER BY created_at, id LIMIT 1)`,
		c.table, where,
	)
	tag, err := c.pool.Exec(ctx, query, args...)
	if err != nil {
		return DeleteResult{}, c.wrap("deleteOne", err)
	}

	return DeleteResult{Acknowledged: true, DeletedCount: tag.RowsAffected()}, nil
}

// buildWhere turns a filter into a SQL predicate. The id compares against
// the primary key; every other path becomes a jsonb containment match.
func buildWhere(filter Filter) (string, []any, error) {
	var conds []string
	var args []any

	rest := Filter{}
	for key, value := range filter {
		if key == IDField {
			args = append(args, fmt.Sprint(value))
			conds = append(conds, fmt.Sprintf("id = $%d", len(args)))
			continue
		}
		rest[key] = value
	}

	if len(rest) > 0 {
		normalized, err := normalizeFilter(rest)
		if err != nil {
			return "", nil, err
		}
		containment, err := json.Marshal(seedFromFilter(normalized))
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode filter: %w", err)
		}
		args = append(args, string(containment))
		conds = append(conds, fmt.Sprintf("doc @> $%d::jsonb", len(args)))
	}

	if len(conds) == 0 {
		return "TRUE", nil, nil
	}
	return strings.Join(conds, " AND "), args, nil
}

// encodeBody serializes doc without its id, which lives in its own column.
func encodeBody(doc Document) (string, error) {
	body := make(Document, len(doc))
	for k, v := range doc {
		if k != IDField {
			body[k] = v
		}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	return string(raw), nil
}

func scanDocument(row pgx.Row) (Document, error) {
	var id string
	var raw []byte
	if err := row.Scan(&id, &raw); err != nil {
		return nil, err
	}

	doc := Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	doc[IDField] = id
	return doc, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
