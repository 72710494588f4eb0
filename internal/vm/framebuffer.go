package vm

import "strings"

// Framebuffer is the monochrome display, indexed [row][column].
// A cell is either 0 or 1.
type Framebuffer [ScreenHeight][ScreenWidth]uint8

// Pixel returns the cell at column x, row y. Coordinates wrap around.
func (fb *Framebuffer) Pixel(x, y int) uint8 {
	x = ((x % ScreenWidth) + ScreenWidth) % ScreenWidth
	y = ((y % ScreenHeight) + ScreenHeight) % ScreenHeight
	return fb[y][x]
}

func (fb *Framebuffer) Clear() {
	*fb = Framebuffer{}
}

// String renders the display one row per line, '#' for set cells and '.' for
// clear ones.
func (fb *Framebuffer) String() string {
	var sb strings.Builder
	sb.Grow(ScreenHeight * (ScreenWidth + 1))

	for _, row := range fb {
		for _, cell := range row {
			if cell != 0 {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}

	return sb.String()
}
