// Package termhal renders the CHIP-8 display in a terminal.
// Every pixel takes two character cells so that the picture keeps its aspect ratio.
package termhal

import (
	"fmt"
	"log/slog"

	"github.com/kapitanov/chip8vm/internal/vm"
	"github.com/nsf/termbox-go"
)

const cellsPerPixel = 2

// Compile-time check to ensure HAL implements vm.HAL.
var _ vm.HAL = (*HAL)(nil)

type HAL struct {
	events chan termbox.Event
	done   chan struct{}
}

func New() (*HAL, error) {
	if err := termbox.Init(); err != nil {
		return nil, fmt.Errorf("failed to init termbox: %w", err)
	}
	termbox.SetInputMode(termbox.InputEsc)
	slog.Debug("termhal: init")

	hal := &HAL{
		events: make(chan termbox.Event, 16),
		done:   make(chan struct{}),
	}
	go hal.pollEvents()

	return hal, nil
}

func (hal *HAL) pollEvents() {
	for {
		e := termbox.PollEvent()
		if e.Type == termbox.EventInterrupt {
			return
		}

		select {
		case hal.events <- e:
		case <-hal.done:
			return
		}
	}
}

func (hal *HAL) Shutdown() {
	close(hal.done)
	termbox.Interrupt()
	termbox.Close()
}

// ReadInput drains pending terminal events. Esc and Ctrl-C quit, Backspace reboots.
func (hal *HAL) ReadInput() error {
	for {
		select {
		case e := <-hal.events:
			if err := translateEvent(e); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func translateEvent(e termbox.Event) error {
	switch e.Type {
	case termbox.EventError:
		return fmt.Errorf("terminal error: %w", e.Err)

	case termbox.EventKey:
		switch e.Key {
		case termbox.KeyEsc, termbox.KeyCtrlC:
			slog.Debug("termhal: exit requested")
			return vm.ErrQuit
		case termbox.KeyBackspace, termbox.KeyBackspace2:
			slog.Debug("termhal: reboot requested")
			return vm.ErrReboot
		}
	}

	return nil
}

func (hal *HAL) Draw(gfx *vm.Framebuffer) error {
	if err := termbox.Clear(termbox.ColorDefault, termbox.ColorDefault); err != nil {
		return fmt.Errorf("failed to clear terminal: %w", err)
	}

	for _, c := range pixelCells(gfx) {
		termbox.SetCell(c.x, c.y, ' ', termbox.ColorDefault, termbox.ColorWhite)
	}

	if err := termbox.Flush(); err != nil {
		return fmt.Errorf("failed to flush terminal: %w", err)
	}
	return nil
}

type cell struct {
	x, y int
}

// pixelCells lists the terminal cells covered by the set pixels of gfx.
func pixelCells(gfx *vm.Framebuffer) []cell {
	var cells []cell
	for y := 0; y < vm.ScreenHeight; y++ {
		for x := 0; x < vm.ScreenWidth; x++ {
			if gfx[y][x] == 0 {
				continue
			}

			for i := 0; i < cellsPerPixel; i++ {
				cells = append(cells, cell{x: x*cellsPerPixel + i, y: y})
			}
		}
	}
	return cells
}
