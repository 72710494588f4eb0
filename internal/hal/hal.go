package hal

import (
	"fmt"
	"log/slog"

	"github.com/kapitanov/chip8vm/internal/vm"
	"github.com/veandco/go-sdl2/sdl"
)

const DefaultScale = 6

// Compile-time check to ensure HAL implements vm.HAL.
var _ vm.HAL = (*HAL)(nil)

type HAL struct {
	window   *sdl.Window
	renderer *sdl.Renderer
	scale    int32
	rects    []sdl.Rect
}

// video is the part of SDL that New drives. Tests replace it to make the
// window or renderer fail.
type video struct {
	init           func(flags uint32) error
	quit           func()
	createWindow   func(width, height int32) (*sdl.Window, error)
	destroyWindow  func(window *sdl.Window) error
	createRenderer func(window *sdl.Window) (*sdl.Renderer, error)
}

var sdlVideo = video{
	init: sdl.Init,
	quit: sdl.Quit,
	createWindow: func(width, height int32) (*sdl.Window, error) {
		return sdl.CreateWindow("CHIP-8", sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED, width, height, sdl.WINDOW_SHOWN)
	},
	destroyWindow: func(window *sdl.Window) error {
		return window.Destroy()
	},
	createRenderer: func(window *sdl.Window) (*sdl.Renderer, error) {
		return sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	},
}

func New(scale int) (*HAL, error) {
	return newHAL(sdlVideo, scale)
}

// newHAL releases whatever it has set up when a later step fails.
func newHAL(v video, scale int) (*HAL, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("scale must be positive, got %d", scale)
	}

	if err := v.init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, fmt.Errorf("failed to init sdl: %w", err)
	}

	width, height := int32(vm.ScreenWidth*scale), int32(vm.ScreenHeight*scale)
	window, err := v.createWindow(width, height)
	if err != nil {
		v.quit()
		return nil, fmt.Errorf("failed to create sdl window: %w", err)
	}
	slog.Debug("hal: create window", "width", width, "height", height)

	renderer, err := v.createRenderer(window)
	if err != nil {
		if derr := v.destroyWindow(window); derr != nil {
			slog.Error("failed to destroy sdl window", "err", derr)
		}
		v.quit()
		return nil, fmt.Errorf("failed to create sdl renderer: %w", err)
	}
	slog.Debug("hal: create renderer")

	return &HAL{
		window:   window,
		renderer: renderer,
		scale:    int32(scale),
		rects:    make([]sdl.Rect, 0, vm.ScreenWidth*vm.ScreenHeight),
	}, nil
}

func (hal *HAL) Shutdown() {
	if err := hal.renderer.Destroy(); err != nil {
		slog.Error("failed to destroy sdl renderer", "err", err)
	}

	if err := hal.window.Destroy(); err != nil {
		slog.Error("failed to destroy sdl window", "err", err)
	}

	sdl.Quit()
}

// ReadInput drains the SDL event queue. Closing the window or pressing Escape
// quits, Backspace reboots.
func (hal *HAL) ReadInput() error {
	for e := sdl.PollEvent(); e != nil; e = sdl.PollEvent() {
		switch e.GetType() {
		case sdl.QUIT:
			slog.Debug("hal: exit requested")
			return vm.ErrQuit

		case sdl.KEYDOWN:
			switch e.(*sdl.KeyboardEvent).Keysym.Scancode {
			case sdl.SCANCODE_ESCAPE:
				slog.Debug("hal: exit requested")
				return vm.ErrQuit
			case sdl.SCANCODE_BACKSPACE:
				slog.Debug("hal: reboot requested")
				return vm.ErrReboot
			}
		}
	}

	return nil
}

func (hal *HAL) Draw(gfx *vm.Framebuffer) error {
	hal.rects = pixelRects(gfx, hal.scale, hal.rects[:0])

	if err := hal.renderer.SetDrawColor(0x00, 0x00, 0x00, 0xFF); err != nil {
		return fmt.Errorf("failed to set sdl background color: %w", err)
	}

	if err := hal.renderer.Clear(); err != nil {
		return fmt.Errorf("failed to clear sdl renderer: %w", err)
	}

	if len(hal.rects) > 0 {
		if err := hal.renderer.SetDrawColor(0xFF, 0xFF, 0xFF, 0xFF); err != nil {
			return fmt.Errorf("failed to set sdl foreground color: %w", err)
		}

		if err := hal.renderer.FillRects(hal.rects); err != nil {
			return fmt.Errorf("failed to fill sdl rects: %w", err)
		}
	}

	hal.renderer.Present()
	return nil
}

// pixelRects appends one scale×scale rect for every set cell of gfx to dst.
func pixelRects(gfx *vm.Framebuffer, scale int32, dst []sdl.Rect) []sdl.Rect {
	for y := 0; y < vm.ScreenHeight; y++ {
		for x := 0; x < vm.ScreenWidth; x++ {
			if gfx[y][x] == 0 {
				continue
			}

			dst = append(dst, sdl.Rect{
				X: int32(x) * scale,
				Y: int32(y) * scale,
				W: scale,
				H: scale,
			})
		}
	}

	return dst
}
