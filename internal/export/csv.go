package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
)

var csvHeader = []string{
	"objective_id", "level", "title", "owner", "status", "progress", "visibility",
	"parent_id", "aligned", "key_results",
}

func exportCSV(report Report) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range report.Rows {
		record := []string{
			row.ObjectiveID,
			strconv.Itoa(row.Level),
			row.Title,
			row.Owner,
			row.Status,
			csvNumber(row.Progress),
			row.Visibility,
			row.ParentID,
			strconv.FormatBool(row.Aligned),
			strconv.Itoa(len(row.KeyResults)),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row %s: %w", row.ObjectiveID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(report.Title) + ".csv",
		MimeType: "text/csv; charset=utf-8",
	}, nil
}

func csvNumber(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return ""
	}
	return strconv.FormatFloat(value, 'f', 2, 64)
}
