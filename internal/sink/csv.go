// Package sink writes and reads the labeled anomaly table.
package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"traffic-anomaly-detector/internal/model"
)

// Column names, in table order
const (
	ColumnID          = "id"
	ColumnScore       = "score"
	ColumnLabel       = "label"
	ColumnLegacyLabel = "anomaly"
	ColumnLegacyID    = "file"
)

// TableOptions controls the optional columns of the table
type TableOptions struct {
	IncludeScore bool
	// LegacyLabel names the label column "anomaly"
	LegacyLabel bool
}

// DefaultTableOptions writes the score column and the "label" header
func DefaultTableOptions() TableOptions {
	return TableOptions{IncludeScore: true}
}

// Header returns the column names for opts
func Header(opts TableOptions) []string {
	header := []string{ColumnID, "packet_count", "avg_len", "tcp_ratio", "udp_ratio", "flow_entropy"}
	if opts.IncludeScore {
		header = append(header, ColumnScore)
	}
	if opts.LegacyLabel {
		return append(header, ColumnLegacyLabel)
	}
	return append(header, ColumnLabel)
}

// WriteCSV writes records as CSV to w
func WriteCSV(w io.Writer, records []model.AnomalyRecord, opts TableOptions) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(opts)); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(row(r, opts)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(r model.AnomalyRecord, opts TableOptions) []string {
	out := []string{
		r.ID,
		strconv.Itoa(r.Features.PacketCount),
		formatFloat(r.Features.AvgLen),
		formatFloat(r.Features.TCPRatio),
		formatFloat(r.Features.UDPRatio),
		formatFloat(r.Features.FlowEntropy),
	}
	if opts.IncludeScore {
		out = append(out, formatFloat(r.Score))
	}
	return append(out, strconv.Itoa(r.Label))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// CSVSink writes the table to a file. The file is replaced atomically, so a failed
// write leaves any previous table untouched.
type CSVSink struct {
	Path    string
	Options TableOptions
}

// NewCSVSink creates a sink writing to path with default options
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{Path: path, Options: DefaultTableOptions()}
}

// Write implements pipeline.Sink
func (s *CSVSink) Write(ctx context.Context, records []model.AnomalyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create output file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := WriteCSV(tmp, records, s.Options); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", s.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.Path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.Path, err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.Path, err)
	}
	return nil
}

// Location implements pipeline.Sink
func (s *CSVSink) Location() string {
	return s.Path
}
