package vm

import (
	"context"
	"fmt"
	"log/slog"
)

func (vm *VM) executeOpcode(opcode uint16) error {
	instr := decode(opcode)

	if vm.logger.Enabled(context.Background(), slog.LevelDebug) {
		vm.logger.Debug(
			"exec",
			"pc", fmt.Sprintf("0x%04x", vm.opcodePC),
			"opcode", fmt.Sprintf("0x%04x", opcode),
			"instr", instr.Name(opcode),
		)
	}

	return instr.Execute(vm, opcode)
}

// instruction handlers run after pc has been advanced past the opcode.
type instruction struct {
	Name    func(opcode uint16) string
	Execute func(vm *VM, opcode uint16) error
}

// Mnemonic returns the disassembled form of opcode.
func Mnemonic(opcode uint16) string {
	return decode(opcode).Name(opcode)
}

func decode(opcode uint16) instruction {
	switch opcode & 0xF000 {
	case 0x0000:
		switch opcode {
		case 0x00E0:
			// 00E0 - Clear screen
			return clsInstruction

		case 0x00EE:
			// 00EE - Return from subroutine
			return rtsInstruction
		}

	case 0x1000:
		// 1NNN - Jumps to address NNN
		return jmpInstruction

	case 0x2000:
		// 2NNN - Calls subroutine at NNN
		return jsrInstruction

	case 0x3000:
		// 3XNN - Skips the next instruction if VX equals NN
		return skeq1Instruction

	case 0x4000:
		// 4XNN - Skips the next instruction if VX does not equal NN
		return skne1Instruction

	case 0x5000:
		// 5XY0 - Skips the next instruction if VX equals VY
		return skeq2Instruction

	case 0x6000:
		// 6XNN - Sets VX to NN
		return mov1Instruction

	case 0x7000:
		// 7XNN - Adds NN to VX
		return add1Instruction

	case 0x8000:
		// 8XY_
		switch opcode & 0x000F {
		case 0x0000:
			// 8XY0 - Sets VX to the value of VY
			return mov2Instruction

		case 0x0001:
			// 8XY1 - Sets VX to (VX OR VY)
			return orInstruction

		case 0x0002:
			// 8XY2 - Sets VX to (VX AND VY)
			return andInstruction

		case 0x0003:
			// 8XY3 - Sets VX to (VX XOR VY)
			return xorInstruction

		case 0x0004:
			// 8XY4 - Adds VY to VX. VF is set to 1 when there's a carry, and to 0 when there isn't.
			return add2Instruction

		case 0x0005:
			// 8XY5 - VY is subtracted from VX. VF is set to 1 when the result is positive.
			return subInstruction

		case 0x0006:
			// 8XY6 - Shifts VX right by one. VF is set to the value of the least significant bit of VX before the shift.
			return shrInstruction

		case 0x0007:
			// 8XY7 - Sets VX to VY minus VX. VF is set to 1 when the result is positive.
			return rsbInstruction

		case 0x000E:
			// 8XYE - Shifts VX left by one. VF is set to the value of the most significant bit of VX before the shift.
			return shlInstruction
		}

	case 0x9000:
		// 9XY0 - Skips the next instruction if VX doesn't equal VY
		return skne2Instruction

	case 0xA000:
		// ANNN - Sets I to the address NNN
		return mviInstruction

	case 0xB000:
		// BNNN - Jumps to the address NNN plus V0
		return jmiInstruction

	case 0xC000:
		// CXNN - Sets VX to a random number, masked by NN
		return randInstruction

	case 0xD000:
		// DXYN - Draws a sprite at coordinate (VX, VY) that has a width of 8
		// pixels and a height of N pixels, read from memory starting at I.
		return spriteInstruction

	case 0xE000:
		// EX9E, EXA1 - Keypad skips. There is no keypad.
		return notHandledInstruction

	case 0xF000:
		switch opcode & 0x00FF {
		case 0x0007, 0x000A, 0x0015, 0x0018, 0x0033, 0x0055, 0x0065:
			// FX07, FX0A, FX15, FX18 - Timers and key wait
			// FX33, FX55, FX65 - BCD and register block transfer
			return notHandledInstruction

		case 0x001E:
			// FX1E - Adds VX to I
			return adiInstruction

		case 0x0029:
			// FX29 - Sets I to the location of the sprite for the character in VX
			return fontInstruction
		}
	}

	return unknownInstruction
}

var (
	// 00E0	cls	Clear the screen
	clsInstruction = instruction{
		Name: func(opcode uint16) string {
			return "cls"
		},
		Execute: func(vm *VM, opcode uint16) error {
			vm.gfx.Clear()
			return nil
		},
	}

	// 00EE	rts	return from subroutine call
	rtsInstruction = instruction{
		Name: func(opcode uint16) string {
			return "rts"
		},
		Execute: func(vm *VM, opcode uint16) error {
			if vm.sp == 0 {
				return vm.fatal(opcode, ErrStackUnderflow)
			}

			vm.sp--
			vm.pc = vm.stack[vm.sp]
			return nil
		},
	}

	// 1xxx	jmp xxx	jump to address xxx
	jmpInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("jmp 0x%04x", opcode&0x0FFF)
		},
		Execute: func(vm *VM, opcode uint16) error {
			pc := opcode & 0x0FFF
			if pc == vm.pc-InstructionSize {
				vm.logger.Info("program looped", "pc", fmt.Sprintf("0x%04x", pc))
				vm.running = false
			}
			vm.pc = pc
			return nil
		},
	}

	// 2xxx	jsr xxx	jump to subroutine at address xxx
	jsrInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("jsr 0x%04x", opcode&0x0FFF)
		},
		Execute: func(vm *VM, opcode uint16) error {
			if vm.sp >= StackSize {
				return vm.fatal(opcode, ErrStackOverflow)
			}

			vm.stack[vm.sp] = vm.pc
			vm.sp++
			vm.pc = opcode & 0x0FFF
			return nil
		},
	}

	// 3rxx	skeq vr,xx	skip if register r = constant
	skeq1Instruction = instruction{
		Name: func(opcode uint16) string {
			vX := (opcode & 0x0F00) >> 8
			y := uint8(opcode & 0x00FF)

			return fmt.Sprintf("skeq v%x, %d", vX, y)
		},
		Execute: func(vm *VM, opcode uint16) error {
			vX := (opcode & 0x0F00) >> 8
			x := vm.registers[vX]
			y := uint8(opcode & 0x00FF)

			if x == y {
				vm.pc += InstructionSize
			}
			return nil
		},
	}

	// 4rxx	skne vr,xx	skip if register r <> constant
	skne1Instruction = instruction{
		Name: func(opcode uint16) string {
			vX := (opcode & 0x0F00) >> 8
			y := uint8(opcode & 0x00FF)

			return fmt.Sprintf("skne v%x, %d", vX, y)
		},
		Execute: func(vm *VM, opcode uint16) error {
			vX := (opcode & 0x0F00) >> 8
			x := vm.registers[vX]
			y := uint8(opcode & 0x00FF)

			if x != y {
				vm.pc += InstructionSize
			}
			return nil
		},
	}

	// 5ry0	skeq vr,vy	skip if register r = register y
	skeq2Instruction = instruction{
		Name: func(opcode uint16) string {
			vX := (opcode & 0x0F00) >> 8
			vY := (opcode & 0x00F0) >> 4

			return fmt.Sprintf("skeq v%x, v%x", vX, vY)
		},
		Execute: func(vm *VM, opcode uint16) error {
			vX := (opcode & 0x0F00) >> 8
			vY := (opcode & 0x00F0) >> 4

			if vm.registers[vX] == vm.registers[vY] {
				vm.pc += InstructionSize
			}
			return nil
		},
	}

	// 6rxx	mov vr,xx	move constant to register r
	mov1Instruction = instruction{
		Name: func(opcode uint16) string {
			vX := (opcode & 0x0F00) >> 8
			y := uint8(opcode & 0x00FF)

			return fmt.Sprintf("mov v%x, %d", vX, y)
		},
		Execute: func(vm *VM, opcode uint16) error {
			vX := (opcode & 0x0F00) >> 8
			vm.registers[vX] = uint8(opcode & 0x00FF)
			return nil
		},
	}

	// 7rxx	add vr,xx	add constant to register r	No carry generated
	add1Instruction = instruction{
		Name: func(opcode uint16) string {
			vX := (opcode & 0x0F00) >> 8
			y := uint8(opcode & 0x00FF)

			return fmt.Sprintf("add v%x, %d", vX, y)
		},
		Execute: func(vm *VM, opcode uint16) error {
			vX := (opcode & 0x0F00) >> 8
			vm.registers[vX] += uint8(opcode & 0x00FF)
			return nil
		},
	}

	// 8ry0	mov vr,vy	move register vy into vr
	mov2Instruction = instruction{
		Name:    registerPairName("mov"),
		Execute: registerPairOp(func(x, y uint8) uint8 { return y }),
	}

	// 8ry1	or rx,ry	or register vy into register vx
	orInstruction = instruction{
		Name:    registerPairName("or"),
		Execute: registerPairOp(func(x, y uint8) uint8 { return x | y }),
	}

	// 8ry2	and rx,ry	and register vy into register vx
	andInstruction = instruction{
		Name:    registerPairName("and"),
		Execute: registerPairOp(func(x, y uint8) uint8 { return x & y }),
	}

	// 8ry3	xor rx,ry	exclusive or register ry into register rx
	xorInstruction = instruction{
		Name:    registerPairName("xor"),
		Execute: registerPairOp(func(x, y uint8) uint8 { return x ^ y }),
	}

	// 8ry4	add vr,vy	add register vy to vr,carry in vf
	add2Instruction = instruction{
		Name: registerPairName("add"),
		Execute: func(vm *VM, opcode uint16) error {
			vX := (opcode & 0x0F00) >> 8
			vY := (opcode & 0x00F0) >> 4
			sum := uint16(vm.registers[vX]) + uint16(vm.registers[vY])

			limit := uint16(0x100)
			if vm.quirks.StrictCarry {
				limit = 0xFF
			}

			vm.registers[vX] = uint8(sum)
			vm.registers[0x0F] = flag(sum > limit)
			return nil
		},
	}

	// 8ry5	sub vr,vy	subtract register vy from vr,vf set to 1 on a positive result
	subInstruction = instruction{
		Name: registerPairName("sub"),
		Execute: func(vm *VM, opcode uint16) error {
			vX := (opcode & 0x0F00) >> 8
			vY := (opcode & 0x00F0) >> 4
			result := int(vm.registers[vX]) - int(vm.registers[vY])

			vm.registers[vX] = uint8(result)
			vm.registers[0x0F] = flag(result > 0)
			return nil
		},
	}

	// 8r06	shr vr	shift register vr right, bit 0 goes into register vf
	shrInstruction = instruction{
		Name: func(opcode uint16) string {
			vX := (opcode & 0x0F00) >> 8

			return fmt.Sprintf("shr v%x", vX)
		},
		Execute: func(vm *VM, opcode uint16) error {
			vX := (opcode & 0x0F00) >> 8
			x := vm.registers[vX]

			vm.registers[vX] = x >> 1
			vm.registers[0x0F] = x & 0x1
			return nil
		},
	}

	// 8ry7	rsb vr,vy	subtract register vr from register vy, result in vr, vf set to 1 on a positive result
	rsbInstruction = instruction{
		Name: registerPairName("rsb"),
		Execute: func(vm *VM, opcode uint16) error {
			vX := (opcode & 0x0F00) >> 8
			vY := (opcode & 0x00F0) >> 4
			result := int(vm.registers[vY]) - int(vm.registers[vX])

			vm.registers[vX] = uint8(result)
			vm.registers[0x0F] = flag(result > 0)
			return nil
		},
	}

	// 8r0e	shl vr	shift register vr left,bit 7 goes into register vf
	shlInstruction = instruction{
		Name: func(opcode uint16) string {
			vX := (opcode & 0x0F00) >> 8

			return fmt.Sprintf("shl v%x", vX)
		},
		Execute: func(vm *VM, opcode uint16) error {
			vX := (opcode & 0x0F00) >> 8
			x := vm.registers[vX]

			vm.registers[vX] = x << 1
			vm.registers[0x0F] = x >> 7
			return nil
		},
	}

	// 9ry0	skne vr,vy	skip if register r <> register y
	skne2Instruction = instruction{
		Name: func(opcode uint16) string {
			vX := (opcode & 0x0F00) >> 8
			vY := (opcode & 0x00F0) >> 4

			return fmt.Sprintf("skne v%x, v%x", vX, vY)
		},
		Execute: func(vm *VM, opcode uint16) error {
			vX := (opcode & 0x0F00) >> 8
			vY := (opcode & 0x00F0) >> 4

			if vm.registers[vX] != vm.registers[vY] {
				vm.pc += InstructionSize
			}
			return nil
		},
	}

	// axxx	mvi xxx	Load index register with constant xxx
	mviInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("mvi 0x%04x", opcode&0x0FFF)
		},
		Execute: func(vm *VM, opcode uint16) error {
			vm.index = opcode & 0x0FFF
			return nil
		},
	}

	// bxxx	jmi xxx	Jump to address xxx+register v0
	jmiInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("jmi 0x%04x", opcode&0x0FFF)
		},
		Execute: func(vm *VM, opcode uint16) error {
			vm.pc = (opcode & 0x0FFF) + uint16(vm.registers[0])
			return nil
		},
	}

	// crxx	rand vr,xx	vr = random byte and xx
	randInstruction = instruction{
		Name: func(opcode uint16) string {
			vX := (opcode & 0x0F00) >> 8
			return fmt.Sprintf("rand v%x, 0x%02x", vX, opcode&0x00FF)
		},
		Execute: func(vm *VM, opcode uint16) error {
			vX := (opcode & 0x0F00) >> 8
			mask := uint8(opcode & 0x00FF)

			vm.registers[vX] = uint8(vm.randIntN(0xFF+1)) & mask
			return nil
		},
	}

	// sprite rx,ry,s	Draw sprite at screen location rx,ry height s
	// Sprites stored in memory at location in index register, 8 bits wide.
	// Wraps around the screen on both axes.
	// A set sprite bit turns the pixel on, a clear bit turns it off. vf is set
	// to 1 if a set bit lands on a pixel that was already on, otherwise 0.
	spriteInstruction = instruction{
		Name: func(opcode uint16) string {
			vX := (opcode & 0x0F00) >> 8
			vY := (opcode & 0x00F0) >> 4
			height := opcode & 0x000F
			return fmt.Sprintf("sprite v%x, v%x, %d", vX, vY, height)
		},
		Execute: func(vm *VM, opcode uint16) error {
			vX := (opcode & 0x0F00) >> 8
			vY := (opcode & 0x00F0) >> 4
			height := opcode & 0x000F

			xLocation, yLocation := uint16(vm.registers[vX]), uint16(vm.registers[vY])

			hasCollision := false
			for y := uint16(0); y < height; y++ {
				row := vm.memory[(vm.index+y)%MemorySize]
				screenY := (y + yLocation) % ScreenHeight

				const width = uint16(8)
				for x := uint16(0); x < width; x++ {
					screenX := (x + xLocation) % ScreenWidth

					if row&(0x80>>x) == 0 {
						vm.gfx[screenY][screenX] = 0
						continue
					}

					if vm.gfx[screenY][screenX] != 0 {
						hasCollision = true
					}
					vm.gfx[screenY][screenX] = 1
				}
			}

			vm.registers[0x0F] = flag(hasCollision)
			return nil
		},
	}

	// fr1e	adi vr	add register vr to the index register
	adiInstruction = instruction{
		Name: func(opcode uint16) string {
			vX := (opcode & 0x0F00) >> 8
			return fmt.Sprintf("adi v%x", vX)
		},
		Execute: func(vm *VM, opcode uint16) error {
			vX := (opcode & 0x0F00) >> 8
			x := uint16(vm.registers[vX])

			if vm.quirks.WideIndex {
				vm.index = (x + vm.index) % MemorySize
			} else {
				vm.index = (x + vm.index) % 0xFF
			}
			return nil
		},
	}

	// fr29	font vr	point I to the sprite for hexadecimal character in vr	Sprite is 5 bytes high
	fontInstruction = instruction{
		Name: func(opcode uint16) string {
			vX := (opcode & 0x0F00) >> 8
			return fmt.Sprintf("font v%x", vX)
		},
		Execute: func(vm *VM, opcode uint16) error {
			vX := (opcode & 0x0F00) >> 8
			x := uint16(vm.registers[vX])
			if vm.quirks.FontFromNibble {
				x = vX
			}

			vm.index = FontStart + x*GlyphSize
			return nil
		},
	}

	notHandledInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("nop 0x%04X", opcode)
		},
		Execute: func(vm *VM, opcode uint16) error {
			vm.reporter.Report(vm.opcodeError(opcode, ErrNotImplemented))
			return nil
		},
	}

	unknownInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("unknown 0x%04X", opcode)
		},
		Execute: func(vm *VM, opcode uint16) error {
			vm.reporter.Report(vm.opcodeError(opcode, ErrUnknownOpcode))
			return nil
		},
	}
)

func registerPairName(mnemonic string) func(opcode uint16) string {
	return func(opcode uint16) string {
		vX := (opcode & 0x0F00) >> 8
		vY := (opcode & 0x00F0) >> 4

		return fmt.Sprintf("%s v%x, v%x", mnemonic, vX, vY)
	}
}

// registerPairOp builds an 8XYn handler that stores op(VX, VY) into VX and
// leaves VF alone.
func registerPairOp(op func(x, y uint8) uint8) func(vm *VM, opcode uint16) error {
	return func(vm *VM, opcode uint16) error {
		vX := (opcode & 0x0F00) >> 8
		vY := (opcode & 0x00F0) >> 4

		vm.registers[vX] = op(vm.registers[vX], vm.registers[vY])
		return nil
	}
}

// fatal stops the machine and reports err for the current instruction.
func (vm *VM) fatal(opcode uint16, err error) error {
	opErr := vm.opcodeError(opcode, err)
	vm.running = false
	vm.reporter.Report(opErr)
	return opErr
}

func flag(set bool) uint8 {
	if set {
		return 1
	}
	return 0
}
