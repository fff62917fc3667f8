package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/ZanzyTHEbar/kbm-risk/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasFault(t *testing.T) {
	tests := []struct {
		name     string
		csv      string
		expected bool
	}{
		{"positive code", "tripID,dtc\n1,0\n1,3\n", true},
		{"all zero", "tripID,dtc\n1,0\n1,0\n", false},
		{"all non numeric", "tripID,dtc\n1,P0300\n1,none\n1,n/a\n", false},
		{"empty values", "tripID,dtc\n1,\n1,\n", false},
		{"padded numeric", "tripID,dtc\n1, 2 \n", true},
		{"negative ignored", "tripID,dtc\n1,-1\n", false},
		{"fractional code", "tripID,dtc\n1,0.5\n", true},
		{"header only", "tripID,dtc\n", false},
		{"short rows tolerated", "tripID,speed,dtc\n1,40\n1,40,1\n", true},
		{"byte order mark", "\ufeffdtc,tripID\n4,1\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HasFault(strings.NewReader(tt.csv))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestHasFault_MissingColumn(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"no dtc column", "tripID,gpsSpeed\n1,40\n"},
		{"empty file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HasFault(strings.NewReader(tt.csv))
			assert.False(t, got)
			assert.True(t, apperrors.IsCategory(err, apperrors.CategoryMissingColumn))
		})
	}
}

func TestHasFault_MalformedCSV(t *testing.T) {
	_, err := HasFault(strings.NewReader("tripID,dtc\n1,\"3\n"))
	require.Error(t, err)
	assert.False(t, apperrors.IsCategory(err, apperrors.CategoryMissingColumn))
}

func TestParseAccel(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected [3]float64
		ok       bool
	}{
		{"bracketed", "[0.5, -2.5, 9.8]", [3]float64{0.5, -2.5, 9.8}, true},
		{"bracketed extra axes", "[1,2,3,4]", [3]float64{1, 2, 3}, true},
		{"bracketed too short", "[1,2]", [3]float64{}, false},
		{"bracketed garbage", "[a,b,c]", [3]float64{}, false},
		{"hex", "8078860000", [3]float64{0, -4, 3}, true},
		{"hex uppercase", "FF00807F", [3]float64{63.5, -64, 0}, true},
		{"hex too short", "807886", [3]float64{}, false},
		{"not hex", "80788z00", [3]float64{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseAccel(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}

const tripLog = `tripID,timeStamp,gpsSpeed,accData,dtc
b,2024-03-01 14:00:00,40,"[0,-3,9.8]",0
b,2024-03-01 14:00:05,60,"[4,0,9.8]",0
b,2024-03-01 14:00:10,50,"[0,2.5,9.8]",0
b,2024-03-01 14:00:15,30,"[-3.5,-2.5,9.8]",1
a,2024-03-01T05:59:55Z,20,8086780000,0
a,2024-03-01T05:59:58Z,30,8086780000,0
a,2024-03-01T06:00:05Z,25,8080800000,0
a,not-a-time,25,8080800000,0
a,2024-03-01T06:00:25Z,250,8080800000,0
a,2024-03-01T06:00:26Z,fast,8080800000,0
short,2024-03-01 10:00:00,50,"[0,0,0]",0
short,2024-03-01 10:00:05,50,"[0,0,0]",0
slow,2024-03-01 10:00:00,1,"[0,0,0]",0
slow,2024-03-01 10:01:00,2,"[0,0,0]",0
sparse,2024-03-01 10:00:00,50,"[0,0,0]",0
sparse,2024-03-01 11:00:00,50,"[0,0,0]",0
`

func TestSummarizeTrips(t *testing.T) {
	trips, err := SummarizeTrips(strings.NewReader(tripLog))
	require.NoError(t, err)
	require.Len(t, trips, 2)

	a := trips[0]
	assert.Equal(t, "a", a.TripID)
	assert.InDelta(t, 10, a.DurationSeconds, 1e-9)
	assert.InDelta(t, 25, a.AvgSpeed, 1e-9)
	assert.Equal(t, 30.0, a.MaxSpeed)
	assert.Equal(t, 0, a.HardBrakes)
	assert.Equal(t, 2, a.HardAccels)
	assert.Equal(t, 0, a.SharpTurns)
	assert.InDelta(t, 2.0/3.0, a.NightDrivingRatio, 1e-9)
	assert.False(t, a.Fault)
	assert.InDelta(t, 3.0/11.0, a.FrequencyHz, 1e-9)

	b := trips[1]
	assert.Equal(t, "b", b.TripID)
	assert.InDelta(t, 15, b.DurationSeconds, 1e-9)
	assert.InDelta(t, 45, b.AvgSpeed, 1e-9)
	assert.Equal(t, 60.0, b.MaxSpeed)
	assert.Equal(t, 2, b.HardBrakes)
	assert.Equal(t, 1, b.HardAccels)
	assert.Equal(t, 2, b.SharpTurns)
	assert.Zero(t, b.NightDrivingRatio)
	assert.True(t, b.Fault)
	assert.InDelta(t, 4.0/16.0, b.FrequencyHz, 1e-9)
}

func TestSummarizeTrips_AlternateSpeedColumn(t *testing.T) {
	log := "tripID,timeStamp,gps_speed\n" +
		"x,2024-03-01 14:00:00,40\n" +
		"x,2024-03-01 14:00:12,40\n"

	trips, err := SummarizeTrips(strings.NewReader(log))
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, 0, trips[0].HardBrakes)
	assert.False(t, trips[0].Fault)
}

func TestSummarizeTrips_MissingColumns(t *testing.T) {
	tests := []struct {
		name    string
		csv     string
		missing string
	}{
		{"no trip id", "timeStamp,gpsSpeed\n", "tripID"},
		{"no timestamp", "tripID,gpsSpeed\n", "timeStamp"},
		{"no speed", "tripID,timeStamp,dtc\n", "gpsSpeed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SummarizeTrips(strings.NewReader(tt.csv))
			require.Error(t, err)
			assert.True(t, apperrors.IsCategory(err, apperrors.CategoryMissingColumn))
			assert.Contains(t, err.Error(), tt.missing)
		})
	}
}

func writeLog(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestInspector_Resolve(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "trips/obd.csv", "dtc\n0\n")
	outside := writeLog(t, t.TempDir(), "secret.csv", "dtc\n1\n")

	in := NewInspector(dir)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"relative inside", "trips/obd.csv", false},
		{"absolute inside", filepath.Join(dir, "trips", "obd.csv"), false},
		{"dot dot escape", "../secret.csv", true},
		{"nested escape", "trips/../../secret.csv", true},
		{"absolute outside", outside, true},
		{"directory itself", ".", true},
		{"blank", "  ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := in.Resolve(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInspector_Disabled(t *testing.T) {
	in := NewInspector("")
	assert.False(t, in.Enabled())

	report, err := in.Inspect("obd.csv")
	assert.Error(t, err)
	assert.False(t, report.Signal)
}

func TestInspector_Inspect(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "fault.csv", tripLog)
	writeLog(t, dir, "nodtc.csv", "tripID,timeStamp,gpsSpeed\nx,2024-03-01 14:00:00,40\n")
	writeLog(t, dir, "dtconly.csv", "dtc\n0\n2\n")
	writeLog(t, dir, "garbage.csv", "dtc\n\"unterminated\n")

	in := NewInspector(dir)

	tests := []struct {
		name     string
		path     string
		signal   bool
		fault    bool
		trips    int
		warnings int
		wantErr  bool
	}{
		{"fault with trips", "fault.csv", true, true, 2, 0, false},
		{"missing dtc column", "nodtc.csv", false, false, 0, 1, true},
		{"dtc without trip columns", "dtconly.csv", true, true, 0, 1, false},
		{"unreadable csv", "garbage.csv", false, false, 0, 0, true},
		{"missing file", "absent.csv", false, false, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := in.Inspect(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.path, report.Path)
			assert.Equal(t, tt.signal, report.Signal)
			assert.Equal(t, tt.fault, report.Fault)
			assert.Len(t, report.Trips, tt.trips)
			assert.Len(t, report.Warnings, tt.warnings)
		})
	}
}

func TestInspector_SizeLimit(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "big.csv", "dtc\n"+strings.Repeat("0\n", 64))

	in := NewInspector(dir)
	in.maxBytes = 32

	report, err := in.Inspect("big.csv")
	assert.Error(t, err)
	assert.False(t, report.Signal)
}
