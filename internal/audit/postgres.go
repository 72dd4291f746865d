package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/edgararthur/pinkytrust-sub003/internal/platform/db"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS activity_logs (
		sequence      BIGSERIAL PRIMARY KEY,
		id            UUID NOT NULL UNIQUE,
		action        TEXT NOT NULL,
		resource      TEXT NOT NULL,
		resource_id   TEXT NOT NULL,
		resource_name TEXT NOT NULL DEFAULT '',
		user_id       TEXT NOT NULL,
		user_name     TEXT NOT NULL DEFAULT '',
		user_email    TEXT NOT NULL DEFAULT '',
		ip_address    TEXT NOT NULL DEFAULT '',
		user_agent    TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL CHECK (status IN ('success', 'failed', 'warning')),
		details       JSONB,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS activity_logs_created_at_idx ON activity_logs (created_at DESC, sequence DESC)`,
	`CREATE INDEX IF NOT EXISTS activity_logs_user_idx ON activity_logs (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS activity_logs_resource_idx ON activity_logs (resource, action)`,
}

const selectColumns = `sequence, id::text, action, resource, resource_id, resource_name, user_id, user_name,
	user_email, ip_address, user_agent, status, details, created_at`

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PgxDB is the subset of *pgxpool.Pool used by PostgresRepository.
type PgxDB interface {
	dbtx
	db.TxBeginner
}

// PostgresRepository stores entries in the activity_logs table.
type PostgresRepository struct {
	pool PgxDB
}

// NewPostgresRepository builds a repository over pool.
func NewPostgresRepository(pool PgxDB) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the table and indexes when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("audit: ensure schema: %w", classify(err))
		}
	}
	return nil
}

// Insert stores entry; the database assigns the sequence.
func (r *PostgresRepository) Insert(ctx context.Context, entry Entry) (Entry, error) {
	id, err := pgUUID(entry.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: id: %v", ErrValidation, err)
	}
	details, err := encodeDetails(entry.Details)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: details: %v", ErrValidation, err)
	}
	err = r.pool.QueryRow(ctx, `INSERT INTO activity_logs
		(id, action, resource, resource_id, resource_name, user_id, user_name, user_email,
		 ip_address, user_agent, status, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING sequence`,
		id, entry.Action, entry.Resource, entry.ResourceID, entry.ResourceName,
		entry.UserID, entry.UserName, entry.UserEmail, entry.IPAddress, entry.UserAgent,
		string(entry.Status), details, entry.CreatedAt,
	).Scan(&entry.Sequence)
	if err != nil {
		return Entry{}, classify(err)
	}
	return entry, nil
}

// Get loads one entry by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Entry, error) {
	key, err := pgUUID(id)
	if err != nil {
		return Entry{}, ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM activity_logs WHERE id = $1`, key)
	entry, err := scanEntry(row)
	if err != nil {
		return Entry{}, classify(err)
	}
	return entry, nil
}

// Find counts and pages matching entries inside one read-only snapshot.
func (r *PostgresRepository) Find(ctx context.Context, filters Filters, offset, limit int) ([]Entry, int, error) {
	where := buildWhere(filters)
	var (
		total   int
		entries []Entry
	)
	err := db.WithReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM activity_logs`+where.clause(), where.args...).Scan(&total); err != nil {
			return err
		}
		args := append(append([]interface{}{}, where.args...), limit, offset)
		query := fmt.Sprintf(`SELECT %s FROM activity_logs%s ORDER BY %s LIMIT $%d OFFSET $%d`,
			selectColumns, where.clause(), orderClause(filters.SortBy, filters.SortDir), len(where.args)+1, len(where.args)+2)
		var err error
		entries, err = queryEntries(ctx, tx, query, args...)
		return err
	})
	if err != nil {
		return nil, 0, classify(err)
	}
	return entries, total, nil
}

// FindAll returns every matching entry.
func (r *PostgresRepository) FindAll(ctx context.Context, filters Filters) ([]Entry, error) {
	where := buildWhere(filters)
	query := fmt.Sprintf(`SELECT %s FROM activity_logs%s ORDER BY %s`,
		selectColumns, where.clause(), orderClause(filters.SortBy, filters.SortDir))
	entries, err := queryEntries(ctx, r.pool, query, where.args...)
	if err != nil {
		return nil, classify(err)
	}
	return entries, nil
}

// Aggregate computes grouped counts inside one read-only snapshot.
func (r *PostgresRepository) Aggregate(ctx context.Context, filters Filters, window Window) (Aggregates, error) {
	agg := Aggregates{
		ByStatus:   make(map[Status]int),
		ByResource: make(map[string]int),
		ByAction:   make(map[string]int),
		ByDay:      make(map[string]int),
	}
	where := buildWhere(filters)
	err := db.WithReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT status, resource, action, COUNT(*) FROM activity_logs`+where.clause()+
			` GROUP BY status, resource, action`, where.args...)
		if err != nil {
			return err
		}
		for rows.Next() {
			var (
				status, resource, action string
				n                        int
			)
			if err := rows.Scan(&status, &resource, &action, &n); err != nil {
				rows.Close()
				return err
			}
			agg.ByStatus[Status(status)] += n
			agg.ByResource[resource] += n
			agg.ByAction[action] += n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		daily := buildWhere(filters)
		daily.add("created_at >= $%d", window.From)
		daily.add("created_at < $%d", window.To)
		rows, err = tx.Query(ctx, `SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
			FROM activity_logs`+daily.clause()+` GROUP BY day`, daily.args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				day string
				n   int
			)
			if err := rows.Scan(&day, &n); err != nil {
				return err
			}
			agg.ByDay[day] = n
		}
		return rows.Err()
	})
	if err != nil {
		return Aggregates{}, classify(err)
	}
	return agg, nil
}

type whereBuilder struct {
	conds []string
	args  []interface{}
}

// add appends a condition; every $%d placeholder in cond binds the new argument.
func (b *whereBuilder) add(cond string, arg interface{}) {
	b.args = append(b.args, arg)
	n := len(b.args)
	b.conds = append(b.conds, strings.ReplaceAll(cond, "$%d", fmt.Sprintf("$%d", n)))
}

func (b *whereBuilder) clause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

func buildWhere(f Filters) *whereBuilder {
	b := &whereBuilder{}
	if f.Search != "" {
		b.add(`(strpos(lower(resource_name), lower($%d)) > 0 OR strpos(lower(user_name), lower($%d)) > 0 OR strpos(lower(user_email), lower($%d)) > 0)`, f.Search)
	}
	if f.Action != "" {
		b.add("action = $%d", f.Action)
	}
	if f.Resource != "" {
		b.add("resource = $%d", f.Resource)
	}
	if f.Status != "" {
		b.add("status = $%d", string(f.Status))
	}
	if f.UserID != "" {
		b.add("user_id = $%d", f.UserID)
	}
	if !f.StartDate.IsZero() {
		b.add("created_at >= $%d", f.StartDate)
	}
	if !f.EndDate.IsZero() {
		b.add("created_at <= $%d", f.EndDate)
	}
	return b
}

var sortColumns = map[string]string{
	SortCreatedAt: "created_at",
	SortAction:    `action COLLATE "C"`,
	SortResource:  `resource COLLATE "C"`,
	SortStatus:    `status COLLATE "C"`,
	SortUserName:  `user_name COLLATE "C"`,
}

// orderClause only emits whitelisted columns and directions.
func orderClause(field string, dir SortDirection) string {
	col, ok := sortColumns[field]
	if !ok {
		col = sortColumns[SortCreatedAt]
	}
	d := "DESC"
	if dir == SortAsc {
		d = "ASC"
	}
	return fmt.Sprintf("%s %s, sequence %s", col, d, d)
}

func queryEntries(ctx context.Context, q dbtx, query string, args ...interface{}) ([]Entry, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e       Entry
		status  string
		details []byte
		created pgtype.Timestamptz
	)
	if err := row.Scan(&e.Sequence, &e.ID, &e.Action, &e.Resource, &e.ResourceID, &e.ResourceName,
		&e.UserID, &e.UserName, &e.UserEmail, &e.IPAddress, &e.UserAgent, &status, &details, &created); err != nil {
		return Entry{}, err
	}
	e.Status = Status(status)
	if created.Valid {
		e.CreatedAt = created.Time.UTC()
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return Entry{}, fmt.Errorf("audit: decode details: %w", err)
		}
	}
	return e, nil
}

func encodeDetails(details map[string]any) ([]byte, error) {
	if details == nil {
		return nil, nil
	}
	return json.Marshal(details)
}

// classify maps driver errors onto the package sentinels. Server-side errors
// keep their identity; anything that never reached the server is reported as
// ErrStoreUnavailable.
// uniqueViolation is the SQLSTATE for a unique constraint; only the id column
// carries one.
const uniqueViolation = "23505"

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.Message)
		}
		if strings.HasPrefix(pgErr.Code, "23") {
			return fmt.Errorf("%w: %s", ErrValidation, pgErr.Message)
		}
		return fmt.Errorf("audit: postgres %s: %w", pgErr.Code, err)
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func pgUUID(id string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}
