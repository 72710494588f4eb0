package vm

import (
	"context"
	"fmt"
	"time"
)

// HAL is the host side of the machine: a display sink and an event source.
type HAL interface {
	// ReadInput drains pending host events. It returns ErrQuit or ErrReboot
	// when the user asked for it.
	ReadInput() error
	// Draw renders a framebuffer snapshot, replacing the previous frame.
	Draw(gfx *Framebuffer) error
}

// Clock sets the instruction and frame rates of Run.
type Clock struct {
	InstructionHz int
	FrameHz       int
}

// DefaultClock runs 60 instructions and 30 frames per second.
var DefaultClock = Clock{
	InstructionHz: 60,
	FrameHz:       30,
}

// MaxHz is the highest rate a Clock accepts: one tick per nanosecond.
const MaxHz = int(time.Second)

// Validate checks that both rates are positive and at most MaxHz.
func (c Clock) Validate() error {
	if err := validateHz("instruction", c.InstructionHz); err != nil {
		return err
	}
	return validateHz("frame", c.FrameHz)
}

func validateHz(name string, hz int) error {
	if hz <= 0 || hz > MaxHz {
		return fmt.Errorf("%s rate must be in 1..%d, got %d", name, MaxHz, hz)
	}
	return nil
}

// Run executes instructions at clock.InstructionHz and hands a framebuffer
// snapshot to hal at clock.FrameHz. Once the program halts it keeps drawing
// and polling input until hal returns an error or ctx is done.
// Fatal step errors are returned as is.
func (vm *VM) Run(ctx context.Context, hal HAL, clock Clock) error {
	if err := clock.Validate(); err != nil {
		return err
	}

	stepTicker := time.NewTicker(time.Second / time.Duration(clock.InstructionHz))
	defer stepTicker.Stop()

	frameTicker := time.NewTicker(time.Second / time.Duration(clock.FrameHz))
	defer frameTicker.Stop()

	halted := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-stepTicker.C:
			if !vm.running {
				if !halted {
					vm.logger.Info("program halted", "cycles", vm.cycle)
					halted = true
				}
				continue
			}

			if err := vm.Step(); err != nil {
				return err
			}

		case <-frameTicker.C:
			if err := vm.runFrame(hal); err != nil {
				return err
			}
		}
	}
}

func (vm *VM) runFrame(hal HAL) error {
	if err := hal.ReadInput(); err != nil {
		return err
	}

	gfx := vm.Framebuffer()
	return hal.Draw(&gfx)
}

// RunHeadless steps as fast as possible until the program halts.
// It gives up with ErrCycleLimit after maxCycles instructions; zero means
// no limit.
func (vm *VM) RunHeadless(ctx context.Context, maxCycles uint64) error {
	const checkEvery = 1024

	for vm.running {
		if maxCycles > 0 && vm.cycle >= maxCycles {
			return fmt.Errorf("%w: %d", ErrCycleLimit, maxCycles)
		}

		if vm.cycle%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if err := vm.Step(); err != nil {
			return err
		}
	}

	vm.logger.Info("program halted", "cycles", vm.cycle)
	return nil
}
