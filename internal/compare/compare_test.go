package compare

import (
	"strconv"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfsreport/internal/dataset/datasettest"
	"gtfsreport/internal/gtfs"
)

func TestRoutes(t *testing.T) {
	ds, _ := datasettest.Sample(t)

	res, err := Routes(ds, "R1", "B20")
	require.NoError(t, err)
	assert.Equal(t, &Result{
		RouteA: "R1", RouteB: "B20",
		StoryA: 1, StoryB: 4,
		StopsA: 2, StopsB: 2,
		Distance: 2,
	}, res)

	same, err := Routes(ds, "R1", "R1")
	require.NoError(t, err)
	assert.Zero(t, same.Distance)
}

func TestRoutesEditDistance(t *testing.T) {
	ds, _ := datasettest.Sample(t)
	// give B20's single story an extra stop in the middle
	ds.Stories[4] = gtfs.RouteStory{ID: 4, Stops: []gtfs.RouteStoryStop{
		{StopID: "100"}, {StopID: "300"}, {StopID: "200"},
	}}

	res, err := Routes(ds, "R1", "B20")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Distance)
}

func TestRoutesErrors(t *testing.T) {
	ds, _ := datasettest.Sample(t)

	_, err := Routes(ds, "B10", "R1")
	assert.ErrorIs(t, err, ErrNotSingleStory)

	_, err = Routes(ds, "R1", "nope")
	assert.ErrorContains(t, err, "unknown route")
}

func TestStoriesOf(t *testing.T) {
	ds, _ := datasettest.Sample(t)
	assert.Equal(t, []int{2, 3}, StoriesOf(ds, "B10"))
	assert.Equal(t, []int{1}, StoriesOf(ds, "R1"))
	assert.Empty(t, StoriesOf(ds, "XX"))
}

func TestSymbol(t *testing.T) {
	tests := []struct {
		n    int
		want rune
	}{
		{0, 0},
		{0xD7FF, 0xD7FF},
		{0xD800, 0xE000},
		{unicode.MaxRune - 0x800, unicode.MaxRune},
	}
	for _, tt := range tests {
		r, err := symbol(tt.n)
		require.NoError(t, err, tt.n)
		assert.Equal(t, tt.want, r, tt.n)
		assert.True(t, utf8.ValidRune(r), tt.n)
	}

	_, err := symbol(unicode.MaxRune - 0x800 + 1)
	assert.ErrorIs(t, err, ErrTooManyStops)
}

func TestEncodeKeepsDistinctStopsApart(t *testing.T) {
	symbols := make(map[string]rune)
	for i := range 0xD900 {
		symbols[strconv.Itoa(i)] = 0
	}
	rs := gtfs.RouteStory{ID: 1, Stops: []gtfs.RouteStoryStop{{StopID: "a"}, {StopID: "b"}, {StopID: "a"}}}

	enc, err := encode(rs, symbols)
	require.NoError(t, err)
	runes := []rune(enc)
	require.Len(t, runes, 3)
	assert.NotEqual(t, runes[0], runes[1])
	assert.Equal(t, runes[0], runes[2])
	assert.NotEqual(t, utf8.RuneError, runes[1])
}
