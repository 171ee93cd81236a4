// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jllopis/agentnet/pkg/errors"
)

// ColdTier is the durable region of the store.
type ColdTier interface {
	// Upsert inserts it, or on conflict replaces its content and increments
	// the stored access counter instead of overwriting it.
	Upsert(ctx context.Context, it Item) error
	// Touch records one read of id at now and returns the updated item.
	Touch(ctx context.Context, id string, now time.Time) (Item, bool, error)
	// Query returns items matching q, most recently accessed first.
	Query(ctx context.Context, q ColdQuery) ([]Item, error)
	// PromotionCandidates returns items read more than minAccess times at or
	// after since.
	PromotionCandidates(ctx context.Context, minAccess int64, since time.Time, limit int) ([]Item, error)
	// Delete removes id and reports whether it was present.
	Delete(ctx context.Context, id string) (bool, error)
	// DeleteNetwork removes every item of a network and returns their ids.
	DeleteNetwork(ctx context.Context, networkID string) ([]string, error)
	// DeleteOlderThan removes items created before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]Ref, error)
}

// Ref identifies a removed item.
type Ref struct {
	ID        string
	NetworkID string
}

// ColdQuery filters cold tier reads. Zero fields do not filter.
type ColdQuery struct {
	NetworkID string
	Type      Type
	// Terms must all appear in the content, case-insensitively.
	Terms      []string
	IDs        []string
	ExcludeIDs []string
	Limit      int
}

// SQLiteColdTier persists cold items in SQLite.
type SQLiteColdTier struct {
	db *sql.DB
}

// OpenSQLite opens a modernc SQLite database for the cold tier.
func OpenSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; SQLite serialises writes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewSQLiteColdTier creates a SQLite-backed cold tier and ensures schema.
func NewSQLiteColdTier(db *sql.DB) (*SQLiteColdTier, error) {
	if db == nil {
		return nil, errors.Validation("db is nil")
	}
	if err := ensureColdSchema(db); err != nil {
		return nil, coldErr("schema", err)
	}
	return &SQLiteColdTier{db: db}, nil
}

const coldColumns = `id, network_id, type, content, confidence, created_at, last_accessed,
	access_count, tier_hits, metadata_json, embedding_json`

func (s *SQLiteColdTier) Upsert(ctx context.Context, it Item) error {
	meta, emb, err := encodeColdBlobs(it)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_items (`+coldColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			network_id = excluded.network_id,
			type = excluded.type,
			content = excluded.content,
			confidence = excluded.confidence,
			metadata_json = excluded.metadata_json,
			embedding_json = excluded.embedding_json,
			last_accessed = MAX(memory_items.last_accessed, excluded.last_accessed),
			access_count = memory_items.access_count + 1
	`,
		it.ID,
		it.NetworkID,
		string(it.Type),
		it.Content,
		it.Confidence,
		it.CreatedAt.UnixMilli(),
		it.LastAccessed.UnixMilli(),
		it.AccessCount,
		it.TierHits,
		meta,
		emb,
	)
	if err != nil {
		return coldErr("upsert", err)
	}
	return nil
}

func (s *SQLiteColdTier) Touch(ctx context.Context, id string, now time.Time) (Item, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE memory_items
		SET access_count = access_count + 1,
			tier_hits = tier_hits + 1,
			last_accessed = MAX(last_accessed, ?)
		WHERE id = ?
		RETURNING `+coldColumns,
		now.UnixMilli(), id)
	it, err := scanCold(row)
	if err == sql.ErrNoRows {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, coldErr("touch", err)
	}
	return it, true, nil
}

func (s *SQLiteColdTier) Query(ctx context.Context, q ColdQuery) ([]Item, error) {
	query := `SELECT ` + coldColumns + ` FROM memory_items`
	var args []any
	where := ""
	addFilter := func(clause string, values ...any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, values...)
	}
	if q.NetworkID != "" {
		addFilter("network_id = ?", q.NetworkID)
	}
	if q.Type != "" {
		addFilter("type = ?", string(q.Type))
	}
	for _, term := range q.Terms {
		if term = strings.TrimSpace(term); term != "" {
			addFilter("LOWER(content) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(term))+"%")
		}
	}
	if len(q.IDs) > 0 {
		addFilter("id IN ("+placeholders(len(q.IDs))+")", stringArgs(q.IDs)...)
	}
	if len(q.ExcludeIDs) > 0 {
		addFilter("id NOT IN ("+placeholders(len(q.ExcludeIDs))+")", stringArgs(q.ExcludeIDs)...)
	}
	query += where + " ORDER BY last_accessed DESC, id ASC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}
	return s.queryItems(ctx, "query", query, args...)
}

func (s *SQLiteColdTier) PromotionCandidates(ctx context.Context, minAccess int64, since time.Time, limit int) ([]Item, error) {
	query := `SELECT ` + coldColumns + ` FROM memory_items
		WHERE access_count > ? AND last_accessed >= ?
		ORDER BY access_count DESC, id ASC`
	args := []any{minAccess, since.UnixMilli()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryItems(ctx, "candidates", query, args...)
}

func (s *SQLiteColdTier) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_items WHERE id = ?`, id)
	if err != nil {
		return false, coldErr("delete", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteColdTier) DeleteNetwork(ctx context.Context, networkID string) ([]string, error) {
	refs, err := s.deleteReturning(ctx, `DELETE FROM memory_items WHERE network_id = ? RETURNING id, network_id`, networkID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids, nil
}

func (s *SQLiteColdTier) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]Ref, error) {
	return s.deleteReturning(ctx, `DELETE FROM memory_items WHERE created_at < ? RETURNING id, network_id`, cutoff.UnixMilli())
}

func (s *SQLiteColdTier) deleteReturning(ctx context.Context, query string, arg any) ([]Ref, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, coldErr("delete", err)
	}
	defer rows.Close()
	var refs []Ref
	for rows.Next() {
		var r Ref
		if err := rows.Scan(&r.ID, &r.NetworkID); err != nil {
			return nil, coldErr("delete", err)
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, coldErr("delete", err)
	}
	return refs, nil
}

func (s *SQLiteColdTier) queryItems(ctx context.Context, op, query string, args ...any) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, coldErr(op, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanCold(rows)
		if err != nil {
			return nil, coldErr(op, err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, coldErr(op, err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCold(r rowScanner) (Item, error) {
	var (
		it                  Item
		typ                 string
		created, accessed   int64
		metaJSON, embedJSON sql.NullString
	)
	if err := r.Scan(
		&it.ID,
		&it.NetworkID,
		&typ,
		&it.Content,
		&it.Confidence,
		&created,
		&accessed,
		&it.AccessCount,
		&it.TierHits,
		&metaJSON,
		&embedJSON,
	); err != nil {
		return Item{}, err
	}
	it.Type = Type(typ)
	it.CreatedAt = fromMillis(created)
	it.LastAccessed = fromMillis(accessed)
	it.Tier = TierCold
	if metaJSON.Valid && metaJSON.String != "" {
		_ = json.Unmarshal([]byte(metaJSON.String), &it.Metadata)
	}
	if embedJSON.Valid && embedJSON.String != "" {
		_ = json.Unmarshal([]byte(embedJSON.String), &it.Embedding)
	}
	return it, nil
}

func encodeColdBlobs(it Item) (meta, emb sql.NullString, err error) {
	if len(it.Metadata) > 0 {
		b, err := json.Marshal(it.Metadata)
		if err != nil {
			return meta, emb, errors.New(errors.CodeMemoryError, "encode metadata", err)
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}
	if len(it.Embedding) > 0 {
		b, err := json.Marshal(it.Embedding)
		if err != nil {
			return meta, emb, errors.New(errors.CodeMemoryError, "encode embedding", err)
		}
		emb = sql.NullString{String: string(b), Valid: true}
	}
	return meta, emb, nil
}

func ensureColdSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_items (
			id TEXT PRIMARY KEY,
			network_id TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			last_accessed INTEGER NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0,
			tier_hits INTEGER NOT NULL DEFAULT 0,
			metadata_json TEXT,
			embedding_json TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_memory_items_network ON memory_items(network_id);
		CREATE INDEX IF NOT EXISTS idx_memory_items_created ON memory_items(created_at);
		CREATE INDEX IF NOT EXISTS idx_memory_items_access ON memory_items(access_count, last_accessed);
	`)
	return err
}

func coldErr(op string, err error) error {
	return errors.New(errors.CodeMemoryError, "cold tier "+op, err).WithRecoverable(true)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

var _ ColdTier = (*SQLiteColdTier)(nil)
