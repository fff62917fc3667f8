package telemetry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/ZanzyTHEbar/kbm-risk/internal/errors"
)

// Trip filtering and event thresholds
const (
	MinTripDuration   = 10 * time.Second
	MinAvgSpeed       = 5.0
	MinSampleDensity  = 0.1
	MaxValidSpeed     = 200.0
	HardBrakeAccel    = -2.0
	HardBrakeMinSpeed = 10.0
	HardAccel         = 2.0
	SharpTurnAccel    = 3.0
	NightEndHour      = 6
)

// TripSummary aggregates the samples of one trip
type TripSummary struct {
	TripID            string  `json:"trip_id"`
	DurationSeconds   float64 `json:"duration_sec"`
	AvgSpeed          float64 `json:"avg_speed"`
	MaxSpeed          float64 `json:"max_speed"`
	HardBrakes        int     `json:"hard_brakes"`
	HardAccels        int     `json:"hard_accels"`
	SharpTurns        int     `json:"sharp_turns"`
	NightDrivingRatio float64 `json:"night_driving_ratio"`
	Fault             bool    `json:"has_dtc_errors"`
	FrequencyHz       float64 `json:"data_frequency_hz"`
}

type sample struct {
	at     time.Time
	speed  float64
	accel  [3]float64
	hasAcc bool
	dtc    float64
}

var speedColumns = []string{"gpsSpeed", "gps_speed"}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
}

// SummarizeTrips groups a CSV trip log by tripID and summarizes each trip.
// Rows with an unparsable timestamp or a speed outside [0, 200] are dropped, as are
// malformed CSV lines. Trips that are too short, too slow or too sparsely sampled
// are skipped. Summaries are ordered by trip ID.
func SummarizeTrips(r io.Reader) ([]TripSummary, error) {
	cr := newCSVReader(r)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.NewMissingColumnError("tripID", "timeStamp", speedColumns[0])
		}
		return nil, fmt.Errorf("failed to read trip log header: %w", err)
	}

	idx := columns(header)
	width := len(header)

	var missing []string
	tripCol, ok := idx["tripID"]
	if !ok {
		missing = append(missing, "tripID")
	}
	timeCol, ok := idx["timeStamp"]
	if !ok {
		missing = append(missing, "timeStamp")
	}
	speedCol := -1
	for _, name := range speedColumns {
		if i, ok := idx[name]; ok {
			speedCol = i
			break
		}
	}
	if speedCol < 0 {
		missing = append(missing, speedColumns[0])
	}
	if len(missing) > 0 {
		return nil, apperrors.NewMissingColumnError(missing...)
	}

	accCol, hasAccCol := idx["accData"]
	dtcCol, hasDTCCol := idx[DTCColumn]

	trips := make(map[string][]sample)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return nil, fmt.Errorf("failed to read trip log: %w", err)
		}
		if len(row) != width {
			continue
		}

		speed, err := strconv.ParseFloat(strings.TrimSpace(row[speedCol]), 64)
		if err != nil || math.IsNaN(speed) || speed < 0 || speed > MaxValidSpeed {
			continue
		}
		at, ok := parseTimestamp(row[timeCol])
		if !ok {
			continue
		}

		s := sample{at: at, speed: speed}
		if hasAccCol {
			raw := strings.TrimSpace(row[accCol])
			if raw == "" {
				continue
			}
			s.accel, s.hasAcc = ParseAccel(raw)
		}
		if hasDTCCol {
			s.dtc = dtcValue(row[dtcCol])
		}

		id := strings.TrimSpace(row[tripCol])
		trips[id] = append(trips[id], s)
	}

	ids := make([]string, 0, len(trips))
	for id := range trips {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	summaries := make([]TripSummary, 0, len(ids))
	for _, id := range ids {
		if summary, ok := summarize(id, trips[id]); ok {
			summaries = append(summaries, summary)
		}
	}
	return summaries, nil
}

func summarize(id string, samples []sample) (TripSummary, bool) {
	if len(samples) == 0 {
		return TripSummary{}, false
	}

	first, last := samples[0].at, samples[0].at
	var speedSum float64
	for _, s := range samples {
		if s.at.Before(first) {
			first = s.at
		}
		if s.at.After(last) {
			last = s.at
		}
		speedSum += s.speed
	}

	duration := last.Sub(first)
	if duration < MinTripDuration {
		return TripSummary{}, false
	}
	avgSpeed := speedSum / float64(len(samples))
	if avgSpeed < MinAvgSpeed {
		return TripSummary{}, false
	}
	density := float64(len(samples)) / (duration.Seconds() + 1)
	if density < MinSampleDensity {
		return TripSummary{}, false
	}

	out := TripSummary{
		TripID:          id,
		DurationSeconds: duration.Seconds(),
		AvgSpeed:        avgSpeed,
		FrequencyHz:     density,
	}

	night := 0
	for _, s := range samples {
		out.MaxSpeed = math.Max(out.MaxSpeed, s.speed)
		if s.at.Hour() < NightEndHour {
			night++
		}
		if s.dtc > 0 {
			out.Fault = true
		}
		if !s.hasAcc {
			continue
		}

		x, y := s.accel[0], s.accel[1]
		if y < HardBrakeAccel && s.speed > HardBrakeMinSpeed {
			out.HardBrakes++
		}
		if y > HardAccel {
			out.HardAccels++
		}
		if math.Abs(x) > SharpTurnAccel {
			out.SharpTurns++
		}
	}
	out.NightDrivingRatio = float64(night) / float64(len(samples))

	return out, true
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseAccel decodes an accelerometer sample, either "[x, y, z]" or a hex string whose
// first three bytes are offset by 128 and scaled by 0.5.
func ParseAccel(s string) ([3]float64, bool) {
	var out [3]float64
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "[") && strings.Contains(s, "]") {
		parts := strings.Split(strings.Trim(s, "[]"), ",")
		if len(parts) < 3 {
			return out, false
		}
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
			if err != nil {
				return out, false
			}
			out[i] = v
		}
		return out, true
	}

	if len(s) > 6 && isHex(s) {
		for i := 0; i < 3; i++ {
			b, err := strconv.ParseUint(s[2*i:2*i+2], 16, 8)
			if err != nil {
				return out, false
			}
			out[i] = float64(int(b)-128) * 0.5
		}
		return out, true
	}

	return out, false
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
