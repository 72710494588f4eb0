package vm

import (
	"fmt"
	"log/slog"
)

const (
	MemorySize    = 4096
	StackSize     = 16
	RegisterCount = 16
	ScreenWidth   = 64
	ScreenHeight  = 32

	FontStart       = uint16(0x000)
	ProgramStart    = uint16(0x200)
	InstructionSize = 2

	// GlyphSize is the number of bytes (rows) in each built-in font glyph.
	GlyphSize = 5
)

// Quirks switches individual opcodes to the common CHIP-8 behaviour. The zero
// value keeps this interpreter's historical behaviour.
type Quirks struct {
	// StrictCarry makes 8XY4 set VF when the sum exceeds 255.
	// Otherwise it is only set when the sum exceeds 256.
	StrictCarry bool

	// WideIndex makes FX1E wrap I modulo the memory size instead of modulo 0xFF.
	WideIndex bool

	// FontFromNibble makes FX29 use the X nibble itself as the character
	// instead of the value held in VX.
	FontFromNibble bool
}

type VM struct {
	memory    [MemorySize]uint8    // Memory (4k)
	registers [RegisterCount]uint8 // V registers (V0-VF)

	stack [StackSize]uint16 // Stack
	sp    uint16            // Stack pointer

	pc       uint16 // Program counter
	opcodePC uint16 // Address the last opcode was fetched from
	index    uint16 // Index register

	gfx Framebuffer // Graphics buffer

	opcode  uint16 // Last fetched opcode
	cycle   uint64 // Executed instructions
	running bool   // Cleared on a self-jump or a fatal stack error

	quirks   Quirks
	logger   *slog.Logger
	reporter Reporter
	randIntN func(n int) int
	trace    *Trace

	font    []byte
	program []byte
}

// New creates a machine with empty memory, pc at ProgramStart and the running
// flag set. Images are copied in with Load or Boot.
func New(opts ...Option) *VM {
	vm := &VM{}
	for _, opt := range opts {
		opt(vm)
	}

	if vm.logger == nil {
		vm.logger = slog.Default()
	}
	if vm.reporter == nil {
		vm.reporter = &logReporter{logger: vm.logger}
	}
	if vm.randIntN == nil {
		vm.randIntN = defaultIntN
	}

	vm.initialize()
	return vm
}

// Load copies bs into memory starting at offset. An image that does not fit
// is returned as ErrROMOutOfRange and not reported; memory is left untouched.
func (vm *VM) Load(bs []byte, offset uint16) error {
	if int(offset)+len(bs) > MemorySize {
		return fmt.Errorf("%w: %d bytes at 0x%04x", ErrROMOutOfRange, len(bs), offset)
	}

	copy(vm.memory[offset:], bs)
	vm.logger.Debug("load", "at", fmt.Sprintf("0x%04x", offset), "n", len(bs))
	return nil
}

// Boot resets the machine and loads font at FontStart and program at
// ProgramStart. Both images are kept so that Reset can reload them.
// A nil font selects the built-in font.
func (vm *VM) Boot(font, program []byte) error {
	if font == nil {
		font = chip8Font
	}

	vm.font = font
	vm.program = program
	return vm.Reset()
}

// Reset clears all machine state and reloads the images passed to Boot.
func (vm *VM) Reset() error {
	vm.initialize()

	if err := vm.Load(vm.font, FontStart); err != nil {
		return fmt.Errorf("unable to load font: %w", err)
	}

	if err := vm.Load(vm.program, ProgramStart); err != nil {
		return fmt.Errorf("unable to load program: %w", err)
	}

	vm.logger.Info("load program", "at", fmt.Sprintf("0x%04x", ProgramStart), "n", len(vm.program))
	return nil
}

func (vm *VM) initialize() {
	vm.pc = ProgramStart
	vm.opcodePC = ProgramStart
	vm.index = 0
	vm.sp = 0
	vm.opcode = 0
	vm.cycle = 0
	vm.running = true

	vm.gfx.Clear()
	vm.stack = [StackSize]uint16{}
	vm.registers = [RegisterCount]uint8{}
	vm.memory = [MemorySize]uint8{}
}

// Step executes a single instruction. Unknown and unimplemented opcodes are
// reported and skipped; only stack violations are returned.
func (vm *VM) Step() error {
	vm.opcodePC = vm.pc
	vm.opcode = vm.fetchOpcode()
	vm.pc += InstructionSize

	err := vm.executeOpcode(vm.opcode)
	vm.cycle++

	vm.traceCycle()
	return err
}

// Running reports whether the program is still live. It turns false once the
// program jumps onto itself or hits a stack violation.
func (vm *VM) Running() bool {
	return vm.running
}

// Framebuffer returns a snapshot of the display.
func (vm *VM) Framebuffer() Framebuffer {
	return vm.gfx
}

func (vm *VM) fetchOpcode() uint16 {
	hi := vm.memory[vm.pc%MemorySize]
	lo := vm.memory[(vm.pc+1)%MemorySize]

	opcode := uint16(hi)<<8 | uint16(lo) // Op code is two bytes
	return opcode
}
