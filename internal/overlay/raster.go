package overlay

import (
	"image"
	"image/color"
)

func setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

// fillCircle draws a filled disc centered at (cx, cy).
func fillCircle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				setPixel(img, cx+dx, cy+dy, c)
			}
		}
	}
}

// drawLine draws a Bresenham line stamped with a disc at each step so the
// stroke is roughly thickness pixels wide.
func drawLine(img *image.RGBA, p1, p2 image.Point, thickness int, c color.RGBA) {
	r := thickness / 2
	if r < 0 {
		r = 0
	}

	dx := abs(p2.X - p1.X)
	dy := -abs(p2.Y - p1.Y)
	sx := 1
	if p1.X > p2.X {
		sx = -1
	}
	sy := 1
	if p1.Y > p2.Y {
		sy = -1
	}

	x, y := p1.X, p1.Y
	err := dx + dy
	for {
		if r == 0 {
			setPixel(img, x, y, c)
		} else {
			fillCircle(img, x, y, r, c)
		}
		if x == p2.X && y == p2.Y {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
