package funds

import (
	"encoding/csv"
	"fmt"
	"math/rand/v2"
	"os"
)

// headRows caps how much of the CSV is considered for sampling; the file is
// sorted with the strongest schemes first.
const headRows = 500

// Service serves random samples of fund records from a CSV data source.
type Service struct {
	path string
}

// NewService creates a funds service reading from the given CSV path.
func NewService(path string) *Service {
	return &Service{path: path}
}

// TopSchemes returns up to limit randomly sampled fund records from the
// first rows of the CSV, each keyed by column header. Missing cells are
// returned as empty strings.
func (s *Service) TopSchemes(limit int) ([]map[string]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open funds csv %s: %w", s.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read funds csv %s: %w", s.path, err)
	}
	if len(rows) < 2 {
		return []map[string]string{}, nil
	}

	header := rows[0]
	data := rows[1:]
	if len(data) > headRows {
		data = data[:headRows]
	}

	if limit > len(data) {
		limit = len(data)
	}
	if limit < 0 {
		limit = 0
	}

	picked := rand.Perm(len(data))[:limit]

	records := make([]map[string]string, 0, limit)
	for _, idx := range picked {
		row := data[idx]
		record := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				record[col] = row[i]
			} else {
				record[col] = ""
			}
		}
		records = append(records, record)
	}
	return records, nil
}
