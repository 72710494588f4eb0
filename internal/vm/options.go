package vm

import (
	"log/slog"
	"math/rand/v2"
)

// Option configures a VM created with New.
type Option func(vm *VM)

// WithLogger sets the logger used for tracing and for the default reporter.
func WithLogger(logger *slog.Logger) Option {
	return func(vm *VM) {
		vm.logger = logger
	}
}

// WithReporter replaces the default log-based reporter.
func WithReporter(reporter Reporter) Option {
	return func(vm *VM) {
		vm.reporter = reporter
	}
}

// WithQuirks sets the compatibility switches.
func WithQuirks(quirks Quirks) Option {
	return func(vm *VM) {
		vm.quirks = quirks
	}
}

// WithRand sets the random source used by CXNN.
func WithRand(r *rand.Rand) Option {
	return func(vm *VM) {
		vm.randIntN = r.IntN
	}
}

// WithTrace enables the per-cycle state dump for opcodes matching t.
func WithTrace(t Trace) Option {
	return func(vm *VM) {
		vm.trace = &t
	}
}

func defaultIntN(n int) int {
	return rand.IntN(n)
}
