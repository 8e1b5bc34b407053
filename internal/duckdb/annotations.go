package duckdb

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/exac-annotator/internal/annotate"
)

// lookupChunk bounds the number of placeholders in one IN clause.
const lookupChunk = 500

// AnnotationRecord is one cached service answer. Found is false for keys the
// service reported as unknown; Annotation is nil in that case.
type AnnotationRecord struct {
	Query      annotate.Query
	Found      bool
	Annotation *annotate.Annotation
	RunID      string
	FetchedAt  time.Time
}

// WriteAnnotations stores records with the Appender API, replacing any
// previous answer for the same query key. Later duplicates in records win.
func (s *Store) WriteAnnotations(ctx context.Context, records []AnnotationRecord) error {
	if len(records) == 0 {
		return nil
	}

	// Deduplicate by primary key
	index := make(map[string]int, len(records))
	deduped := make([]AnnotationRecord, 0, len(records))
	for _, r := range records {
		k := r.Query.Key()
		if i, ok := index[k]; ok {
			deduped[i] = r
			continue
		}
		index[k] = len(deduped)
		deduped = append(deduped, r)
	}

	keys := make([]string, len(deduped))
	payloads := make([]string, len(deduped))
	for i, r := range deduped {
		keys[i] = r.Query.Key()
		if r.Found && r.Annotation != nil {
			b, err := json.Marshal(r.Annotation)
			if err != nil {
				return fmt.Errorf("encode annotation %s: %w", keys[i], err)
			}
			payloads[i] = string(b)
		}
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	for start := 0; start < len(keys); start += lookupChunk {
		chunk := keys[start:min(start+lookupChunk, len(keys))]
		query := "DELETE FROM exac_annotations WHERE query IN (" + placeholders(len(chunk)) + ")"
		if _, err := conn.ExecContext(ctx, query, toArgs(chunk)...); err != nil {
			return fmt.Errorf("replace cached annotations: %w", err)
		}
	}

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "exac_annotations")
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	for i, r := range deduped {
		fetched := r.FetchedAt
		if fetched.IsZero() {
			fetched = time.Now()
		}
		if err := appender.AppendRow(
			keys[i], r.Query.Chrom, r.Query.Pos, r.Query.Ref, r.Query.Alt,
			r.Found, payloads[i], r.RunID, fetched.UTC(),
		); err != nil {
			return fmt.Errorf("append annotation %s: %w", keys[i], err)
		}
	}

	return appender.Flush()
}

// LookupAnnotations returns the cached records for the given query keys.
// Keys that were never cached are absent from the result.
func (s *Store) LookupAnnotations(ctx context.Context, keys []string) (map[string]AnnotationRecord, error) {
	out := make(map[string]AnnotationRecord, len(keys))
	for start := 0; start < len(keys); start += lookupChunk {
		chunk := keys[start:min(start+lookupChunk, len(keys))]
		if err := s.lookupChunk(ctx, chunk, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) lookupChunk(ctx context.Context, keys []string, out map[string]AnnotationRecord) error {
	rows, err := s.db.QueryContext(ctx, `SELECT
		query, chrom, pos, ref, alt, found, payload, run_id, fetched_at
		FROM exac_annotations
		WHERE query IN (`+placeholders(len(keys))+`)`, toArgs(keys)...)
	if err != nil {
		return fmt.Errorf("query annotations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, payload string
		var r AnnotationRecord
		if err := rows.Scan(
			&key, &r.Query.Chrom, &r.Query.Pos, &r.Query.Ref, &r.Query.Alt,
			&r.Found, &payload, &r.RunID, &r.FetchedAt,
		); err != nil {
			return fmt.Errorf("scan annotation: %w", err)
		}
		if r.Found && payload != "" {
			var ann annotate.Annotation
			if err := json.Unmarshal([]byte(payload), &ann); err != nil {
				return fmt.Errorf("decode cached annotation %s: %w", key, err)
			}
			r.Annotation = &ann
		}
		out[key] = r
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate annotations: %w", err)
	}
	return nil
}

// CountAnnotations returns the number of cached answers.
func (s *Store) CountAnnotations(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM exac_annotations").Scan(&n); err != nil {
		return 0, fmt.Errorf("count annotations: %w", err)
	}
	return n, nil
}

// ClearAnnotations removes all cached answers.
func (s *Store) ClearAnnotations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM exac_annotations"); err != nil {
		return fmt.Errorf("clear annotations: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(keys []string) []any {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return args
}
