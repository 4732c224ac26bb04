// Package canvas maintains the raster buffer behind the sketch input. The
// buffer has a fixed size; pointer coordinates arrive in viewport space and
// are translated into buffer space using the on-screen bounding rectangle.
package canvas

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"sync"

	"mathtutor-backend/internal/models"
)

const (
	Width  = 640
	Height = 400

	// Stroke half-width. Discs stamped along each segment give the line
	// rounded caps and joins.
	strokeRadius = 2.5
)

type Point struct {
	X float64
	Y float64
}

// Canvas is one session's persistent drawing buffer. Mouse and single-touch
// pointer events feed the same stroke path.
type Canvas struct {
	mu      sync.Mutex
	img     *image.RGBA
	last    Point
	drawing bool
}

func New() *Canvas {
	c := &Canvas{img: image.NewRGBA(image.Rect(0, 0, Width, Height))}
	c.fillWhite()
	return c
}

// Translate maps a viewport-space pointer position into buffer coordinates
// using the canvas element's on-screen bounding rectangle.
func Translate(x, y float64, b models.Bounds) Point {
	if b.Width <= 0 || b.Height <= 0 {
		return Point{X: x, Y: y}
	}
	return Point{
		X: (x - b.Left) * Width / b.Width,
		Y: (y - b.Top) * Height / b.Height,
	}
}

func (c *Canvas) BeginStroke(p Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drawing = true
	c.last = p
	c.stamp(p)
}

func (c *Canvas) ExtendStroke(p Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.drawing {
		return
	}
	c.line(c.last, p)
	c.last = p
}

func (c *Canvas) EndStroke() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drawing = false
}

// Clear resets the buffer to white and drops any stroke in progress.
func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drawing = false
	c.fillWhite()
}

// Capture returns a lossless PNG snapshot of the current buffer.
func (c *Canvas) Capture() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var buf bytes.Buffer
	if err := png.Encode(&buf, c.img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Canvas) fillWhite() {
	draw.Draw(c.img, c.img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
}

// line stamps discs at sub-radius spacing from a to b so consecutive
// segments join without gaps.
func (c *Canvas) line(a, b Point) {
	dx := b.X - a.X
	dy := b.Y - a.Y
	dist := math.Hypot(dx, dy)
	steps := int(dist/(strokeRadius/2)) + 1
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		c.stamp(Point{X: a.X + dx*t, Y: a.Y + dy*t})
	}
}

func (c *Canvas) stamp(p Point) {
	minX := int(math.Floor(p.X - strokeRadius))
	maxX := int(math.Ceil(p.X + strokeRadius))
	minY := int(math.Floor(p.Y - strokeRadius))
	maxY := int(math.Ceil(p.Y + strokeRadius))

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if x < 0 || x >= Width || y < 0 || y >= Height {
				continue
			}
			if math.Hypot(float64(x)+0.5-p.X, float64(y)+0.5-p.Y) <= strokeRadius {
				c.img.SetRGBA(x, y, color.RGBA{A: 255})
			}
		}
	}
}
