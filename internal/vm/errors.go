package vm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrUnknownOpcode  = errors.New("unknown opcode")
	ErrNotImplemented = errors.New("opcode not implemented")
	ErrStackOverflow  = errors.New("stack overflow")
	ErrStackUnderflow = errors.New("stack underflow")
	ErrROMOutOfRange  = errors.New("image does not fit into memory")
	ErrCycleLimit     = errors.New("cycle limit reached")

	// ErrQuit and ErrReboot are returned by a HAL to stop or restart the machine.
	ErrQuit   = errors.New("quit")
	ErrReboot = errors.New("reboot")
)

// OpcodeError describes a failure of the instruction at PC.
type OpcodeError struct {
	PC     uint16
	Opcode uint16
	Err    error
}

func (e *OpcodeError) Error() string {
	return fmt.Sprintf("0x%04x: opcode 0x%04X: %v", e.PC, e.Opcode, e.Err)
}

func (e *OpcodeError) Unwrap() error {
	return e.Err
}

// Reporter receives every condition the machine detects, fatal or not.
type Reporter interface {
	Report(err error)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(err error)

func (f ReporterFunc) Report(err error) {
	f(err)
}

type logReporter struct {
	logger *slog.Logger
}

func (r *logReporter) Report(err error) {
	level := slog.LevelWarn
	if errors.Is(err, ErrStackOverflow) || errors.Is(err, ErrStackUnderflow) {
		level = slog.LevelError
	}

	var opErr *OpcodeError
	if errors.As(err, &opErr) {
		r.logger.Log(context.Background(), level, opErr.Err.Error(),
			"pc", fmt.Sprintf("0x%04x", opErr.PC),
			"opcode", fmt.Sprintf("0x%04x", opErr.Opcode),
		)
		return
	}

	r.logger.Log(context.Background(), level, err.Error())
}

func (vm *VM) opcodeError(opcode uint16, err error) *OpcodeError {
	return &OpcodeError{
		PC:     vm.opcodePC,
		Opcode: opcode,
		Err:    err,
	}
}
