package audit

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"
)

// CSVHeader is the first record written by WriteCSV.
var CSVHeader = []string{
	"id", "sequence", "created_at", "action", "resource", "resource_id", "resource_name",
	"user_id", "user_name", "user_email", "ip_address", "user_agent", "status", "details",
}

// WriteCSV serialises entries as CSV, one row per entry.
func WriteCSV(w io.Writer, entries []Entry) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(CSVHeader); err != nil {
		return err
	}
	for _, e := range entries {
		details := ""
		if len(e.Details) > 0 {
			raw, err := json.Marshal(e.Details)
			if err != nil {
				return err
			}
			details = string(raw)
		}
		record := []string{
			e.ID,
			strconv.FormatInt(e.Sequence, 10),
			e.CreatedAt.UTC().Format(time.RFC3339Nano),
			e.Action,
			e.Resource,
			e.ResourceID,
			e.ResourceName,
			e.UserID,
			e.UserName,
			e.UserEmail,
			e.IPAddress,
			e.UserAgent,
			string(e.Status),
			details,
		}
		for i := range record {
			record[i] = escapeFormula(record[i])
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// escapeFormula keeps spreadsheet applications from evaluating user supplied
// cells as formulas.
func escapeFormula(v string) string {
	if v == "" {
		return v
	}
	switch v[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + v
	}
	return v
}
