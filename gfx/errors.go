// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "github.com/cockroachdb/errors"

// Conditions a backend reports in terms callers can act on.
var (
	ErrOutOfDate         = errors.New("swapchain out of date")
	ErrSuboptimal        = errors.New("swapchain suboptimal")
	ErrFragmentedPool    = errors.New("descriptor pool fragmented")
	ErrOutOfPoolMemory   = errors.New("descriptor pool out of memory")
	ErrInvalidHandle     = errors.New("invalid or stale handle")
	ErrNoSuitableAdapter = errors.New("no suitable adapter")
	ErrDeviceLost        = errors.New("device lost")
)

// IsPoolExhausted reports whether err means a descriptor pool cannot
// satisfy more allocations.
func IsPoolExhausted(err error) bool {
	return errors.Is(err, ErrFragmentedPool) || errors.Is(err, ErrOutOfPoolMemory)
}

// IsSwapchainStale reports whether err asks for the swapchain to be rebuilt.
func IsSwapchainStale(err error) bool {
	return errors.Is(err, ErrOutOfDate) || errors.Is(err, ErrSuboptimal)
}
