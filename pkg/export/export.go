// Package export writes a subject's follower records as CSV.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// idColumn is the store's internal row id, never exported.
const idColumn = "id"

// Source is the part of the store export reads.
type Source interface {
	Columns(ctx context.Context) ([]string, error)
	Rows(ctx context.Context, subject string, fn func(values []string) error) error
}

// FileName is the default export name for t, e.g. 2024-03-09_14-00.csv.
func FileName(t time.Time) string {
	return t.Format("2006-01-02_15") + "-00.csv"
}

// WriteCSV writes a header of the store's columns, minus the row id, then one
// row per record of subject in insertion order. It returns the record count.
func WriteCSV(ctx context.Context, src Source, subject string, w io.Writer) (int, error) {
	cols, err := src.Columns(ctx)
	if err != nil {
		return 0, err
	}
	skip := -1
	header := make([]string, 0, len(cols))
	for i, c := range cols {
		if c == idColumn {
			skip = i
			continue
		}
		header = append(header, c)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	n := 0
	row := make([]string, 0, len(header))
	err = src.Rows(ctx, subject, func(values []string) error {
		row = row[:0]
		for i, v := range values {
			if i != skip {
				row = append(row, v)
			}
		}
		n++
		return cw.Write(row)
	})
	if err != nil {
		return n, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("flush csv: %w", err)
	}
	return n, nil
}

// ToDir writes the export into dir under FileName(now) and returns its path.
func ToDir(ctx context.Context, src Source, subject, dir string, now time.Time) (string, int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(dir, FileName(now))
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create export file: %w", err)
	}
	n, err := WriteCSV(ctx, src, subject, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return path, n, err
	}
	return path, n, nil
}
