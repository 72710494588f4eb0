package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/kapitanov/chip8vm/internal/hal"
	"github.com/kapitanov/chip8vm/internal/termhal"
	"github.com/kapitanov/chip8vm/internal/vm"
	"github.com/spf13/cobra"
)

const (
	displaySDL      = "sdl"
	displayTerminal = "term"
	displayNone     = "none"
)

type options struct {
	verbose   bool
	fontPath  string
	display   string
	clock     vm.Clock
	scale     int
	maxCycles uint64

	trace       bool
	traceOpcode string
	traceMask   string

	quirks vm.Quirks
}

func main() {
	cmd := &cobra.Command{
		Use:           fmt.Sprintf("%s PATH_TO_ROM_FILE", filepath.Base(os.Args[0])),
		Short:         "Run emulator",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	opts := &options{clock: vm.DefaultClock}
	flags := cmd.Flags()
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logging")
	flags.StringVar(&opts.fontPath, "font", "", "path to a font image loaded at 0x000 (built-in font if empty)")
	flags.StringVar(&opts.display, "display", displaySDL, "display sink: sdl, term or none")
	flags.IntVar(&opts.clock.InstructionHz, "clock", vm.DefaultClock.InstructionHz, "instructions per second")
	flags.IntVar(&opts.clock.FrameHz, "fps", vm.DefaultClock.FrameHz, "frames per second")
	flags.IntVar(&opts.scale, "scale", hal.DefaultScale, "pixel scale of the sdl window")
	flags.Uint64Var(&opts.maxCycles, "max-cycles", 10_000_000, "instruction limit for --display=none (0 for no limit)")
	flags.BoolVar(&opts.trace, "trace", false, "dump CPU state after every matching cycle")
	flags.StringVar(&opts.traceOpcode, "trace-opcode", "0x0000", "opcode to dump with --trace")
	flags.StringVar(&opts.traceMask, "trace-mask", "0x0000", "opcode bits compared with --trace-opcode (0 dumps every cycle)")
	flags.BoolVar(&opts.quirks.StrictCarry, "strict-carry", false, "8XY4 sets VF when the sum exceeds 255")
	flags.BoolVar(&opts.quirks.WideIndex, "wide-index", false, "FX1E wraps I at 0x1000 instead of 0xFF")
	flags.BoolVar(&opts.quirks.FontFromNibble, "font-nibble", false, "FX29 uses the X nibble instead of VX")

	cmd.PreRunE = func(_ *cobra.Command, _ []string) error {
		switch opts.display {
		case displaySDL, displayTerminal, displayNone:
		default:
			return fmt.Errorf("unknown display %q", opts.display)
		}

		if err := opts.clock.Validate(); err != nil {
			return fmt.Errorf("invalid --clock or --fps: %w", err)
		}

		if opts.scale <= 0 {
			return errors.New("--scale must be positive")
		}

		return nil
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		loggerOpts := &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}
		if opts.verbose {
			loggerOpts.Level = slog.LevelDebug
		}

		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, loggerOpts)))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return run(ctx, opts, args[0])
	}

	cmd.SetArgs(os.Args[1:])
	if err := cmd.Execute(); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options, path string) error {
	program, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to load file %q: %w", path, err)
	}

	var font []byte
	if opts.fontPath != "" {
		font, err = os.ReadFile(opts.fontPath)
		if err != nil {
			return fmt.Errorf("unable to load font %q: %w", opts.fontPath, err)
		}
	}

	vmOpts := []vm.Option{vm.WithQuirks(opts.quirks)}
	if opts.trace {
		trace, err := parseTrace(opts.traceOpcode, opts.traceMask)
		if err != nil {
			return err
		}
		vmOpts = append(vmOpts, vm.WithTrace(trace))
	}

	machine := vm.New(vmOpts...)
	if err := machine.Boot(font, program); err != nil {
		return err
	}

	switch opts.display {
	case displayNone:
		return runHeadless(ctx, machine, opts.maxCycles)

	case displayTerminal:
		h, err := termhal.New()
		if err != nil {
			return fmt.Errorf("unable to initialize terminal: %w", err)
		}
		defer h.Shutdown()

		return runLoop(ctx, machine, h, opts.clock)

	default:
		h, err := hal.New(opts.scale)
		if err != nil {
			return fmt.Errorf("unable to initialize hal: %w", err)
		}
		defer h.Shutdown()

		return runLoop(ctx, machine, h, opts.clock)
	}
}

func runLoop(ctx context.Context, machine *vm.VM, h vm.HAL, clock vm.Clock) error {
	for {
		err := machine.Run(ctx, h, clock)

		if errors.Is(err, vm.ErrQuit) || errors.Is(err, context.Canceled) {
			return nil
		}

		if errors.Is(err, vm.ErrReboot) {
			if err := machine.Reset(); err != nil {
				return err
			}
			continue
		}

		return err
	}
}

func runHeadless(ctx context.Context, machine *vm.VM, maxCycles uint64) error {
	err := machine.RunHeadless(ctx, maxCycles)

	gfx := machine.Framebuffer()
	fmt.Print(gfx.String())

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func parseTrace(opcode, mask string) (vm.Trace, error) {
	o, err := strconv.ParseUint(opcode, 0, 16)
	if err != nil {
		return vm.Trace{}, fmt.Errorf("invalid --trace-opcode %q: %w", opcode, err)
	}

	m, err := strconv.ParseUint(mask, 0, 16)
	if err != nil {
		return vm.Trace{}, fmt.Errorf("invalid --trace-mask %q: %w", mask, err)
	}

	return vm.Trace{Opcode: uint16(o), Mask: uint16(m)}, nil
}
