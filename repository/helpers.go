package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/akinalp/pano/database"
)

// inClause, "IN (%s)" yer tutucusunu len(values) adet "?" ile doldurur.
func inClause(query string, values []string, leading ...any) (string, []any) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
	args := make([]any, 0, len(leading)+len(values))
	args = append(args, leading...)
	for _, v := range values {
		args = append(args, v)
	}
	return fmt.Sprintf(query, placeholders), args
}

// queryStrings, tek kolonlu string sonuçları slice olarak döner.
func queryStrings(ctx context.Context, db database.TxQuerier, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
