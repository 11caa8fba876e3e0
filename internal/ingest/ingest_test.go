package ingest

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eulerbt/internal/domain"
	"eulerbt/internal/util"
)

func TestLoadCSVNormalizesHeaderAndSorts(t *testing.T) {
	in := ` TS ,Open,HIGH,low,Close,Volume
2024-09-02 08:46:00,101,102,100,101.5,7
2024-09-02 08:45:00,100,101,99,100.5,3
`
	bars, err := LoadCSV(strings.NewReader(in), "TXFR2")
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, time.Date(2024, 9, 2, 8, 45, 0, 0, time.UTC), bars[0].Timestamp)
	assert.Equal(t, "TXFR2", bars[0].Symbol)
	assert.Equal(t, 100.0, bars[0].Open)
	assert.Equal(t, 100.5, bars[0].Close)
	assert.Equal(t, int64(3), bars[0].Volume)
	assert.Equal(t, 101.5, bars[1].Close)
}

func TestLoadCSVLayouts(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{in: "date,open,high,low,close\n2024-09-02,1,1,1,1\n", want: time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)},
		{in: "date,open,high,low,close\n02/09/2024,1,1,1,1\n", want: time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)},
		{in: "timestamp,open,high,low,close\n2024-09-02T08:45:00Z,1,1,1,1\n", want: time.Date(2024, 9, 2, 8, 45, 0, 0, time.UTC)},
		{in: "datetime,open,high,low,close\n2024-09-02 08:45:00,1,1,1,1\n", want: time.Date(2024, 9, 2, 8, 45, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		bars, err := LoadCSV(strings.NewReader(tc.in), "X")
		require.NoError(t, err, tc.in)
		require.Len(t, bars, 1)
		assert.True(t, tc.want.Equal(bars[0].Timestamp), "%s: got %v", tc.in, bars[0].Timestamp)
		assert.Zero(t, bars[0].Volume)
	}
}

func TestLoadCSVInLocation(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	bars, err := LoadCSVIn(strings.NewReader("ts,open,high,low,close\n2024-09-02 13:45:00,1,1,1,1\n"), "X", loc)
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 9, 2, 5, 45, 0, 0, time.UTC).Equal(bars[0].Timestamp))
}

func TestLoadCSVMissingColumns(t *testing.T) {
	_, err := LoadCSV(strings.NewReader("ts,open,high,low\n2024-09-02,1,1,1\n"), "X")
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = LoadCSV(strings.NewReader("when,open,high,low,close\n2024-09-02,1,1,1,1\n"), "X")
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestLoadCSVBadValues(t *testing.T) {
	_, err := LoadCSV(strings.NewReader("ts,open,high,low,close\nyesterday,1,1,1,1\n"), "X")
	assert.Error(t, err)

	_, err = LoadCSV(strings.NewReader("ts,open,high,low,close\n2024-09-02,1,1,1,n/a\n"), "X")
	assert.Error(t, err)
}

func TestLoadCSVRejectsNonFinite(t *testing.T) {
	for _, tc := range []struct {
		name string
		csv  string
		line string
	}{
		{"nan open", "ts,open,high,low,close\n2024-09-02,1,1,1,1\n2024-09-03,1,1,1,1\n2024-09-04,NaN,1,1,1\n", "line 4"},
		{"inf close", "ts,open,high,low,close\n2024-09-02,1,1,1,+Inf\n", "line 2"},
		{"inf volume", "ts,open,high,low,close,volume\n2024-09-02,1,1,1,1,-Inf\n", "line 2"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadCSV(strings.NewReader(tc.csv), "X")
			require.ErrorIs(t, err, ErrNonFinite)
			assert.Contains(t, err.Error(), tc.line)
		})
	}
}

func TestLoadCSVHeaderOnly(t *testing.T) {
	bars, err := LoadCSV(strings.NewReader("ts,open,high,low,close\n"), "X")
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestWriteCSVRoundTrip(t *testing.T) {
	in := []domain.Bar{
		{Timestamp: time.Date(2024, 9, 3, 0, 0, 0, 0, time.UTC), Open: 20, High: 25, Low: 18, Close: 24, Volume: 9},
		{Timestamp: time.Date(2024, 9, 5, 0, 0, 0, 0, time.UTC), Open: 20, High: 32, Low: 30, Close: 31.5, Volume: 6},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, in))
	assert.True(t, strings.HasPrefix(buf.String(), "date,open,high,low,close,volume\n"), buf.String())

	out, err := LoadCSV(&buf, "")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func minute(day, hour, min int, o, h, l, c float64, v int64) domain.Bar {
	return domain.Bar{
		Symbol:    "TXFR2",
		Timestamp: time.Date(2024, 9, day, hour, min, 0, 0, time.UTC),
		Open:      o, High: h, Low: l, Close: c, Volume: v,
	}
}

func TestResampleDaily(t *testing.T) {
	cal, err := util.NewSessionCalendar("13:45", "UTC")
	require.NoError(t, err)

	bars := []domain.Bar{
		minute(2, 13, 44, 10, 11, 9, 10, 1),
		minute(2, 13, 45, 10, 12, 10, 12, 1),
		minute(2, 15, 0, 20, 21, 19, 20, 2), // night session opens the 3rd
		minute(3, 8, 45, 22, 25, 18, 23, 3),
		minute(3, 13, 45, 23, 24, 22, 24, 4),
		minute(4, 8, 45, 29, 30, 28, 29, 5), // no bar at the close: skipped
		minute(5, 13, 45, 31, 32, 30, 31, 6),
	}

	got := ResampleDaily(bars, cal)
	require.Len(t, got, 2)

	assert.Equal(t, domain.Bar{
		Symbol:    "TXFR2",
		Timestamp: time.Date(2024, 9, 3, 0, 0, 0, 0, time.UTC),
		Open:      20, High: 25, Low: 18, Close: 24, Volume: 9,
	}, got[0])

	// The open falls back to the last night session found on an earlier date.
	assert.Equal(t, domain.Bar{
		Symbol:    "TXFR2",
		Timestamp: time.Date(2024, 9, 5, 0, 0, 0, 0, time.UTC),
		Open:      20, High: 32, Low: 30, Close: 31, Volume: 6,
	}, got[1])
}

func TestResampleDailyWithoutNightSession(t *testing.T) {
	cal, err := util.NewSessionCalendar("13:45", "")
	require.NoError(t, err)

	// No bar ever trades after the close, so no session has an open.
	bars := []domain.Bar{
		minute(2, 13, 45, 1, 1, 1, 1, 1),
		minute(3, 13, 45, 2, 2, 2, 2, 1),
	}
	assert.Empty(t, ResampleDaily(bars, cal))
	assert.Empty(t, ResampleDaily(nil, cal))
}
