package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRectContains(t *testing.T) {
	r := Rect{X: 2, Y: 3, Width: 4, Height: 2}

	tests := []struct {
		x, y int
		want bool
	}{
		{2, 3, true},  // top-left corner
		{5, 4, true},  // bottom-right cell
		{6, 3, false}, // one past right edge
		{2, 5, false}, // one past bottom edge
		{1, 3, false}, // left of rect
		{0, 0, false}, // origin
		{3, 4, true},  // interior
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Contains(tt.x, tt.y), "(%d,%d)", tt.x, tt.y)
	}
}

func TestRectIntersect(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 10, Height: 10}
	b := Rect{X: 5, Y: 5, Width: 10, Height: 10}
	assert.Equal(t, Rect{X: 5, Y: 5, Width: 5, Height: 5}, a.Intersect(b))

	c := Rect{X: 20, Y: 20, Width: 3, Height: 3}
	assert.True(t, a.Intersect(c).Empty())
}

func TestRectCenter(t *testing.T) {
	r := Rect{X: 0, Y: 0, Width: 80, Height: 24}
	got := r.Center(40, 10)
	assert.Equal(t, Rect{X: 20, Y: 7, Width: 40, Height: 10}, got)

	// Oversized requests clamp to the parent.
	got = r.Center(100, 30)
	assert.Equal(t, r, got)
}

func TestRectMove(t *testing.T) {
	r := Rect{X: 1, Y: 1, Width: 5, Height: 5}
	assert.Equal(t, Rect{X: 4, Y: 0, Width: 5, Height: 5}, r.Move(3, -1))
}
