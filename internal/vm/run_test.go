package vm_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kapitanov/chip8vm/internal/vm"
)

type fakeHAL struct {
	frames   []vm.Framebuffer
	quitAt   int
	inputErr error
}

func (h *fakeHAL) ReadInput() error {
	if h.quitAt > 0 && len(h.frames) >= h.quitAt {
		return h.inputErr
	}
	return nil
}

func (h *fakeHAL) Draw(gfx *vm.Framebuffer) error {
	h.frames = append(h.frames, *gfx)
	return nil
}

var _ = Describe("Run", func() {
	var (
		machine *vm.VM
		hal     *fakeHAL
		clock   vm.Clock
	)

	boot := func(opcodes ...uint16) {
		machine = vm.New(vm.WithLogger(discardLogger), vm.WithReporter(&recorder{}))
		Expect(machine.Boot(nil, program(opcodes...))).To(Succeed())
	}

	BeforeEach(func() {
		hal = &fakeHAL{quitAt: 3, inputErr: vm.ErrQuit}
		clock = vm.Clock{InstructionHz: 2000, FrameHz: 200}
	})

	It("should keep drawing after the program halts until the host quits", func() {
		boot(0xA300, 0xD011, 0x1204)
		Expect(machine.Load([]byte{0x80}, 0x300)).To(Succeed())

		err := machine.Run(context.Background(), hal, clock)
		Expect(errors.Is(err, vm.ErrQuit)).To(BeTrue())
		Expect(machine.Running()).To(BeFalse())

		Expect(hal.frames).To(HaveLen(3))
		last := hal.frames[len(hal.frames)-1]
		Expect(last[0][0]).To(Equal(uint8(1)))
	})

	It("should pass a reboot request to the caller", func() {
		hal.inputErr = vm.ErrReboot
		boot(0x1200)

		err := machine.Run(context.Background(), hal, clock)
		Expect(errors.Is(err, vm.ErrReboot)).To(BeTrue())
	})

	It("should stop on a fatal step error", func() {
		hal.quitAt = 0
		boot(0x00EE)

		err := machine.Run(context.Background(), hal, clock)
		Expect(errors.Is(err, vm.ErrStackUnderflow)).To(BeTrue())
	})

	It("should stop when the context is done", func() {
		hal.quitAt = 0
		boot(0x1200)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := machine.Run(ctx, hal, clock)
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
	})

	It("should reject a zero clock", func() {
		boot(0x1200)

		Expect(machine.Run(context.Background(), hal, vm.Clock{FrameHz: 30})).NotTo(Succeed())
		Expect(machine.Run(context.Background(), hal, vm.Clock{InstructionHz: 60})).NotTo(Succeed())
	})

	It("should reject a rate faster than one tick per nanosecond", func() {
		boot(0x1200)

		Expect(machine.Run(context.Background(), hal, vm.Clock{InstructionHz: vm.MaxHz + 1, FrameHz: 30})).NotTo(Succeed())
		Expect(machine.Run(context.Background(), hal, vm.Clock{InstructionHz: 60, FrameHz: vm.MaxHz + 1})).NotTo(Succeed())
		Expect(hal.frames).To(BeEmpty())
	})

	DescribeTable("Clock.Validate",
		func(clock vm.Clock, ok bool) {
			if ok {
				Expect(clock.Validate()).To(Succeed())
			} else {
				Expect(clock.Validate()).NotTo(Succeed())
			}
		},
		Entry("default", vm.DefaultClock, true),
		Entry("one tick per nanosecond", vm.Clock{InstructionHz: vm.MaxHz, FrameHz: vm.MaxHz}, true),
		Entry("negative frame rate", vm.Clock{InstructionHz: 60, FrameHz: -1}, false),
		Entry("instruction rate above one per nanosecond", vm.Clock{InstructionHz: vm.MaxHz + 1, FrameHz: 30}, false),
	)
})

var _ = Describe("RunHeadless", func() {
	var machine *vm.VM

	boot := func(opcodes ...uint16) {
		machine = vm.New(vm.WithLogger(discardLogger), vm.WithReporter(&recorder{}))
		Expect(machine.Boot(nil, program(opcodes...))).To(Succeed())
	}

	It("should run until the program halts", func() {
		boot(0x6005, 0x7001, 0x3009, 0x1202, 0x1208)

		Expect(machine.RunHeadless(context.Background(), 0)).To(Succeed())
		Expect(machine.State().Registers[0]).To(Equal(uint8(9)))
		Expect(machine.Running()).To(BeFalse())
	})

	It("should give up after the cycle limit", func() {
		boot(0x1202, 0x1200)

		err := machine.RunHeadless(context.Background(), 100)
		Expect(errors.Is(err, vm.ErrCycleLimit)).To(BeTrue())
		Expect(machine.State().Cycle).To(Equal(uint64(100)))
	})

	It("should stop when the context is cancelled", func() {
		boot(0x1202, 0x1200)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Expect(errors.Is(machine.RunHeadless(ctx, 0), context.Canceled)).To(BeTrue())
	})
})
