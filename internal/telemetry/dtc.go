// Package telemetry reads OBD trip logs: diagnostic trouble codes and per-trip driving summaries.
package telemetry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	apperrors "github.com/ZanzyTHEbar/kbm-risk/internal/errors"
)

// DTCColumn holds the diagnostic trouble code of each sample
const DTCColumn = "dtc"

// HasFault reports whether any row of a CSV trip log carries a positive dtc value.
// Empty and non-numeric values count as zero. A log without a dtc column yields a
// MissingColumn error, which callers treat as no signal.
func HasFault(r io.Reader) (bool, error) {
	cr := newCSVReader(r)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, apperrors.NewMissingColumnError(DTCColumn)
		}
		return false, fmt.Errorf("failed to read trip log header: %w", err)
	}

	col, ok := columns(header)[DTCColumn]
	if !ok {
		return false, apperrors.NewMissingColumnError(DTCColumn)
	}

	fault := false
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return false, fmt.Errorf("failed to read trip log: %w", err)
		}
		if col < len(row) && dtcValue(row[col]) > 0 {
			fault = true
		}
	}
	return fault, nil
}

func dtcValue(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) {
		return 0
	}
	return v
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true
	return cr
}

// columns maps trimmed header names to their positions
func columns(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	return idx
}
