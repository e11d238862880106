package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	t.Run("same point is zero", func(t *testing.T) {
		p := Point{Lat: 32.0853, Lon: 34.7818}
		assert.Zero(t, Distance(p, p))
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		d := Distance(Point{Lat: 0, Lon: 0}, Point{Lat: 1, Lon: 0})
		assert.InDelta(t, 111195, d, 1)
	})

	t.Run("symmetric", func(t *testing.T) {
		a := Point{Lat: 32.0853, Lon: 34.7818}
		b := Point{Lat: 31.7683, Lon: 35.2137}
		assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
		// Tel Aviv to Jerusalem, roughly 54 km
		assert.InDelta(t, 54000, Distance(a, b), 2000)
	})
}
