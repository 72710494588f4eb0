package vm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// State is a diagnostic snapshot of the CPU registers.
type State struct {
	Cycle     uint64
	Opcode    uint16
	InstrPC   uint16 // Address Opcode was fetched from
	PC        uint16 // Address of the next instruction
	Registers [RegisterCount]uint8
	SP        uint16
	Stack     [StackSize]uint16
	Index     uint16
	Running   bool
}

// State returns a snapshot of the registers, stack and counters.
func (vm *VM) State() State {
	return State{
		Cycle:     vm.cycle,
		Opcode:    vm.opcode,
		InstrPC:   vm.opcodePC,
		PC:        vm.pc,
		Registers: vm.registers,
		SP:        vm.sp,
		Stack:     vm.stack,
		Index:     vm.index,
		Running:   vm.running,
	}
}

func (s State) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cycle:     %d\n", s.Cycle)
	fmt.Fprintf(&sb, "opcode:    %04X\n", s.Opcode)
	fmt.Fprintf(&sb, "pc:        %04X\n", s.InstrPC)
	fmt.Fprintf(&sb, "next:      %04X\n", s.PC)
	sb.WriteString("registers:  0   1   2   3   4   5   6   7   8   9   A   B   C   D   E   F\n")
	fmt.Fprintf(&sb, "           %s\n", joinFormatted(s.Registers[:], "%03d"))
	fmt.Fprintf(&sb, "sp:        %d\n", s.SP)
	fmt.Fprintf(&sb, "stack:     %s\n", joinFormatted(s.Stack[:], "%03X"))
	fmt.Fprintf(&sb, "i:         %04X\n", s.Index)
	return sb.String()
}

// LogValue groups the snapshot into a single structured log attribute.
func (s State) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("cycle", s.Cycle),
		slog.String("opcode", fmt.Sprintf("0x%04x", s.Opcode)),
		slog.String("instr", Mnemonic(s.Opcode)),
		slog.String("pc", fmt.Sprintf("0x%04x", s.InstrPC)),
		slog.String("next", fmt.Sprintf("0x%04x", s.PC)),
		slog.String("v", joinFormatted(s.Registers[:], "%02x")),
		slog.Int("sp", int(s.SP)),
		slog.String("stack", joinFormatted(s.Stack[:s.SP], "%03x")),
		slog.String("i", fmt.Sprintf("0x%04x", s.Index)),
	)
}

func joinFormatted[T uint8 | uint16](values []T, format string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf(format, v)
	}
	return strings.Join(parts, " ")
}

// Trace selects the cycles whose state is dumped to the log: those where
// opcode&Mask == Opcode. A zero Trace dumps every cycle.
type Trace struct {
	Opcode uint16
	Mask   uint16
}

func (t Trace) Match(opcode uint16) bool {
	return opcode&t.Mask == t.Opcode
}

func (vm *VM) traceCycle() {
	if vm.trace == nil || !vm.trace.Match(vm.opcode) {
		return
	}

	if !vm.logger.Enabled(context.Background(), slog.LevelInfo) {
		return
	}

	vm.logger.Info("cycle", "state", vm.State())
}
