package telemetry

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/ZanzyTHEbar/kbm-risk/internal/errors"
)

// DefaultMaxFileBytes bounds how much of a trip log is read
const DefaultMaxFileBytes = 64 << 20

// Report is what a trip log contributes to a quote
type Report struct {
	Path string `json:"path"`
	// Signal is false when the log could not say anything about faults
	Signal bool          `json:"signal"`
	Fault  bool          `json:"fault"`
	Trips  []TripSummary `json:"trips,omitempty"`
	// Warnings lists non-fatal problems, such as a missing dtc column
	Warnings []string `json:"warnings,omitempty"`
}

// Inspector reads trip logs from one directory
type Inspector struct {
	dir      string
	maxBytes int64
}

// NewInspector creates an inspector confined to dir. An empty dir disables telemetry.
func NewInspector(dir string) *Inspector {
	return &Inspector{dir: dir, maxBytes: DefaultMaxFileBytes}
}

// Enabled reports whether a telemetry directory is configured
func (i *Inspector) Enabled() bool { return i.dir != "" }

// Resolve maps a client-supplied name to a file inside the telemetry directory,
// rejecting anything that escapes it.
func (i *Inspector) Resolve(name string) (string, error) {
	if !i.Enabled() {
		return "", fmt.Errorf("telemetry directory is not configured")
	}
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("empty telemetry path")
	}

	root, err := filepath.Abs(i.dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve telemetry directory: %w", err)
	}
	if r, err := filepath.EvalSymlinks(root); err == nil {
		root = r
	}

	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	if r, err := filepath.EvalSymlinks(path); err == nil {
		path = r
	}

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("telemetry path %q is outside the telemetry directory", name)
	}
	return path, nil
}

// Inspect reads the named trip log and checks it for fault codes and trips.
// The returned report is always usable. A non-nil error means the log gave no fault
// signal and should be logged by the caller.
func (i *Inspector) Inspect(name string) (Report, error) {
	report := Report{Path: name}

	path, err := i.Resolve(name)
	if err != nil {
		return report, err
	}

	data, err := i.read(path)
	if err != nil {
		return report, err
	}

	fault, err := HasFault(bytes.NewReader(data))
	if err != nil {
		if apperrors.IsCategory(err, apperrors.CategoryMissingColumn) {
			report.Warnings = append(report.Warnings, err.Error())
		}
		return report, err
	}
	report.Signal = true
	report.Fault = fault

	trips, err := SummarizeTrips(bytes.NewReader(data))
	if err != nil {
		report.Warnings = append(report.Warnings, err.Error())
		return report, nil
	}
	report.Trips = trips

	return report, nil
}

func (i *Inspector) read(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trip log: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, i.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read trip log: %w", err)
	}
	if int64(len(data)) > i.maxBytes {
		return nil, fmt.Errorf("trip log exceeds %d bytes", i.maxBytes)
	}
	return data, nil
}
