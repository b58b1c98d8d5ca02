package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"traffic-anomaly-detector/internal/model"
)

// ReadCSV parses a table written by WriteCSV. It also accepts the legacy
// layout: "file" for the id column, "anomaly" for the label column and no score.
func ReadCSV(r io.Reader) ([]model.AnomalyRecord, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	idCol, ok := cols[ColumnID]
	if !ok {
		if idCol, ok = cols[ColumnLegacyID]; !ok {
			return nil, fmt.Errorf("missing %q column", ColumnID)
		}
	}
	labelCol, ok := cols[ColumnLabel]
	if !ok {
		if labelCol, ok = cols[ColumnLegacyLabel]; !ok {
			return nil, fmt.Errorf("missing %q column", ColumnLabel)
		}
	}
	for _, name := range []string{"packet_count", "avg_len", "tcp_ratio", "udp_ratio", "flow_entropy"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing %q column", name)
		}
	}
	scoreCol, hasScore := cols[ColumnScore]

	var records []model.AnomalyRecord
	for line := 2; ; line++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		p := fieldParser{fields: fields, line: line}
		rec := model.AnomalyRecord{
			ID: fields[idCol],
			Features: model.FeatureVector{
				PacketCount: p.parseInt(cols["packet_count"]),
				AvgLen:      p.parseFloat(cols["avg_len"]),
				TCPRatio:    p.parseFloat(cols["tcp_ratio"]),
				UDPRatio:    p.parseFloat(cols["udp_ratio"]),
				FlowEntropy: p.parseFloat(cols["flow_entropy"]),
			},
			Label: p.parseInt(labelCol),
		}
		if hasScore {
			rec.Score = p.parseFloat(scoreCol)
		}
		if p.err != nil {
			return nil, p.err
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadCSVFile opens path and parses it with ReadCSV
func ReadCSVFile(path string) ([]model.AnomalyRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return records, nil
}

// fieldParser keeps the first conversion error of a row
type fieldParser struct {
	fields []string
	line   int
	err    error
}

func (p *fieldParser) parseFloat(i int) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(p.fields[i], 64)
	if err != nil {
		p.err = fmt.Errorf("line %d column %d: %w", p.line, i+1, err)
	}
	return v
}

func (p *fieldParser) parseInt(i int) int {
	if p.err != nil {
		return 0
	}
	v, err := strconv.Atoi(p.fields[i])
	if err != nil {
		p.err = fmt.Errorf("line %d column %d: %w", p.line, i+1, err)
	}
	return v
}
