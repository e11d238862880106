package gtfs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDaySeconds(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "08:00:00", want: 8 * 3600},
		{in: "8:05:30", want: 8*3600 + 5*60 + 30},
		{in: " 25:10:00 ", want: 25*3600 + 600},
		{in: "00:00:00", want: 0},
		{in: "", wantErr: true},
		{in: "08:00", wantErr: true},
		{in: "08:61:00", wantErr: true},
		{in: "aa:00:00", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDaySeconds(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatDaySeconds(t *testing.T) {
	assert.Equal(t, "08:05:00", FormatDaySeconds(8*3600+300))
	assert.Equal(t, "26:00:01", FormatDaySeconds(26*3600+1))
	assert.Equal(t, "-00:05:00", FormatDaySeconds(-300))

	sec, err := ParseDaySeconds(FormatDaySeconds(93784))
	require.NoError(t, err)
	assert.Equal(t, 93784, sec)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("20160501")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2016, 5, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("2016-06-14")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2016, 6, 14, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("2016/06/14")
	assert.Error(t, err)
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("Thu")
	require.NoError(t, err)
	assert.Equal(t, time.Thursday, d)

	d, err = ParseWeekday("sunday")
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, d)

	_, err = ParseWeekday("t")
	assert.Error(t, err)
}

func TestServiceOverlaps(t *testing.T) {
	s := &Service{
		StartDate: time.Date(2016, 5, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2016, 5, 31, 0, 0, 0, 0, time.UTC),
	}
	s.Days[time.Monday] = true
	s.Days[time.Friday] = true

	assert.True(t, s.Overlaps(time.Date(2016, 5, 31, 0, 0, 0, 0, time.UTC), time.Date(2016, 6, 10, 0, 0, 0, 0, time.UTC)))
	assert.False(t, s.Overlaps(time.Date(2016, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2016, 6, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, []time.Weekday{time.Monday, time.Friday}, s.Weekdays())
	assert.True(t, s.Runs(time.Friday))
	assert.False(t, s.Runs(time.Sunday))
}
