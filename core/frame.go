// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/gfx"
	"github.com/sirupsen/logrus"
)

// DefaultFramesInFlight is how many frames the CPU may record ahead of the GPU.
const DefaultFramesInFlight = 2

// Frame is one slot of the frames in flight ring.
type Frame struct {
	ImageAcquired  gfx.Semaphore
	RenderComplete gfx.Semaphore
	Done           gfx.Fence

	CommandPool  gfx.CommandPool
	TransferPool gfx.CommandPool
	Commands     gfx.CommandBuffer

	Descriptors *DescriptorAllocator
	Deletion    DeletionQueue

	// submitted is set once Done has been handed to a submission that has
	// not been waited on yet.
	submitted bool
}

// FrameSynchronizer paces recording against the GPU with a ring of
// frames. It is driven from the rendering goroutine only.
type FrameSynchronizer struct {
	device    gfx.Device
	swapchain *SwapchainManager
	log       logrus.FieldLogger

	frames    []*Frame
	current   int
	image     uint32
	recording bool
	recreate  bool
	abandoned int
}

// NewFrameSynchronizer creates n frames, each with its own semaphores,
// fence, command pools and descriptor allocator.
func NewFrameSynchronizer(device gfx.Device, swapchain *SwapchainManager, n int, logger logrus.FieldLogger) (*FrameSynchronizer, error) {
	if n <= 0 {
		n = DefaultFramesInFlight
	}
	s := &FrameSynchronizer{
		device:    device,
		swapchain: swapchain,
		log:       componentLogger(logger, "frames"),
	}
	for i := 0; i < n; i++ {
		f, err := s.newFrame(logger)
		if err != nil {
			s.Destroy()
			return nil, errors.Wrapf(err, "create frame %d", i)
		}
		s.frames = append(s.frames, f)
	}
	return s, nil
}

func (s *FrameSynchronizer) newFrame(logger logrus.FieldLogger) (*Frame, error) {
	dev := s.device
	f := &Frame{}
	var err error
	cleanup := func() { s.destroyFrame(f) }

	if f.ImageAcquired, err = dev.CreateSemaphore(); err != nil {
		return nil, err
	}
	if f.RenderComplete, err = dev.CreateSemaphore(); err != nil {
		cleanup()
		return nil, err
	}
	if f.Done, err = dev.CreateFence(false); err != nil {
		cleanup()
		return nil, err
	}
	if f.CommandPool, err = dev.CreateCommandPool(gfx.QueueGraphics, false); err != nil {
		cleanup()
		return nil, err
	}
	if f.TransferPool, err = dev.CreateCommandPool(gfx.QueueTransfer, true); err != nil {
		cleanup()
		return nil, err
	}
	if f.Commands, err = dev.AllocateCommandBuffer(f.CommandPool); err != nil {
		cleanup()
		return nil, err
	}
	f.Descriptors = NewDescriptorAllocator(dev, 0, nil, logger)
	return f, nil
}

func (s *FrameSynchronizer) destroyFrame(f *Frame) {
	dev := s.device
	f.Deletion.Flush(dev)
	if f.Descriptors != nil {
		f.Descriptors.Destroy()
	}
	if gfx.Handle(f.TransferPool).Valid() {
		dev.DestroyCommandPool(f.TransferPool)
	}
	if gfx.Handle(f.CommandPool).Valid() {
		dev.DestroyCommandPool(f.CommandPool)
	}
	if gfx.Handle(f.Done).Valid() {
		dev.DestroyFence(f.Done)
	}
	if gfx.Handle(f.RenderComplete).Valid() {
		dev.DestroySemaphore(f.RenderComplete)
	}
	if gfx.Handle(f.ImageAcquired).Valid() {
		dev.DestroySemaphore(f.ImageAcquired)
	}
	*f = Frame{}
}

// RequestRecreate makes the next frame boundary rebuild the swapchain.
func (s *FrameSynchronizer) RequestRecreate() {
	s.recreate = true
}

func (s *FrameSynchronizer) recreateSwapchain() error {
	ok, err := s.swapchain.Recreate()
	if err != nil {
		return errors.Wrap(err, "recreate swapchain")
	}
	s.recreate = !ok
	return nil
}

// BeginFrame waits until the current slot is free, acquires a swapchain
// image and starts recording. It returns false when no frame should be
// recorded this time, such as while the window is minimised or right
// after an out of date swapchain was rebuilt.
func (s *FrameSynchronizer) BeginFrame() (bool, error) {
	if s.recording {
		return false, errors.New("BeginFrame called twice without EndFrame")
	}
	if !s.swapchain.Ready() {
		if !s.recreate {
			return false, nil
		}
		if err := s.recreateSwapchain(); err != nil || !s.swapchain.Ready() {
			return false, err
		}
	}

	f := s.frames[s.current]
	log := s.log.WithField("frame", s.current)
	if f.submitted {
		if err := s.device.WaitFence(f.Done); err != nil {
			return false, errors.Wrap(err, "wait for frame fence")
		}
		f.submitted = false
	}
	f.Deletion.Flush(s.device)

	image, err := s.device.AcquireNextImage(s.swapchain.Handle(), f.ImageAcquired)
	switch {
	case err == nil:
	case errors.Is(err, gfx.ErrSuboptimal):
		log.Warn("Swapchain suboptimal, recreating after present")
		s.recreate = true
	case errors.Is(err, gfx.ErrOutOfDate):
		s.abandoned++
		log.Debug("Swapchain out of date, frame abandoned")
		return false, s.recreateSwapchain()
	default:
		return false, s.abandon(log, f, false, errors.Wrap(err, "acquire swapchain image"))
	}

	if err := f.Descriptors.Reset(); err != nil {
		log.WithError(err).Warn("Frame descriptor pools could not all be reset")
	}
	if err := s.device.ResetCommandBuffer(f.Commands); err != nil {
		return false, s.abandon(log, f, true, errors.Wrap(err, "reset command buffer"))
	}
	if err := s.device.BeginCommandBuffer(f.Commands, true); err != nil {
		return false, s.abandon(log, f, true, errors.Wrap(err, "begin command buffer"))
	}
	s.image = image
	s.recording = true
	return true, nil
}

// abandon gives up on the current frame. When an image was acquired its
// semaphore will be signalled without anyone waiting on it, so it is
// replaced with a fresh one.
func (s *FrameSynchronizer) abandon(log logrus.FieldLogger, f *Frame, acquired bool, cause error) error {
	s.abandoned++
	s.recording = false
	log.WithError(cause).Error("Frame abandoned")
	if acquired {
		if err := s.device.WaitIdle(); err != nil {
			log.WithError(err).Error("Wait for idle failed")
		}
		s.device.DestroySemaphore(f.ImageAcquired)
		sem, err := s.device.CreateSemaphore()
		if err != nil {
			f.ImageAcquired = gfx.Semaphore{}
			return errors.Mark(errors.Wrap(err, "replace image semaphore"), ErrFrameAbandoned)
		}
		f.ImageAcquired = sem
	}
	return errors.Mark(cause, ErrFrameAbandoned)
}

// EndFrame ends recording, submits the frame and presents it. The
// swapchain is rebuilt after presenting when it went stale or a rebuild
// was requested.
func (s *FrameSynchronizer) EndFrame() error {
	if !s.recording {
		return errors.New("EndFrame called without a successful BeginFrame")
	}
	s.recording = false
	f := s.frames[s.current]
	log := s.log.WithField("frame", s.current)

	if err := s.device.EndCommandBuffer(f.Commands); err != nil {
		return s.abandon(log, f, true, errors.Wrap(err, "end command buffer"))
	}
	// The fence is only reset once a submission is certain to signal it.
	if err := s.device.ResetFence(f.Done); err != nil {
		return s.abandon(log, f, true, errors.Wrap(err, "reset frame fence"))
	}
	err := s.device.Submit(gfx.QueueGraphics, gfx.SubmitInfo{
		Commands: []gfx.CommandBuffer{f.Commands},
		Wait:     []gfx.Semaphore{f.ImageAcquired},
		Signal:   []gfx.Semaphore{f.RenderComplete},
		Fence:    f.Done,
	})
	if err != nil {
		return s.abandon(log, f, true, errors.Wrap(err, "submit frame"))
	}
	f.submitted = true

	presentErr := s.device.Present(s.swapchain.Handle(), s.image, f.RenderComplete)
	s.current = (s.current + 1) % len(s.frames)

	switch {
	case presentErr == nil:
	case gfx.IsSwapchainStale(presentErr):
		s.recreate = true
	default:
		log.WithError(presentErr).Error("Present failed")
		return errors.Wrap(presentErr, "present")
	}
	if s.recreate {
		return s.recreateSwapchain()
	}
	return nil
}

// Transfer runs record as a one-shot submission on the transfer queue,
// using the current frame's transfer pool.
func (s *FrameSynchronizer) Transfer(record func(gfx.CommandBuffer) error) error {
	return submitOneShot(s.device, s.frames[s.current].TransferPool, record)
}

// Deletions returns the queue that is flushed once the GPU has finished
// all work recorded so far. While a frame records that is the current
// slot. Between frames the current slot's fence predates the last
// submission, so the queue of the slot submitted last is used.
func (s *FrameSynchronizer) Deletions() *DeletionQueue {
	i := s.current
	if !s.recording {
		i = (s.current - 1 + len(s.frames)) % len(s.frames)
	}
	return &s.frames[i].Deletion
}

// Current returns the index of the current frame.
func (s *FrameSynchronizer) Current() int { return s.current }

// CurrentFrame returns the current frame.
func (s *FrameSynchronizer) CurrentFrame() *Frame { return s.frames[s.current] }

// Frame returns frame i of the ring.
func (s *FrameSynchronizer) Frame(i int) *Frame { return s.frames[i] }

// Len returns the number of frames in flight.
func (s *FrameSynchronizer) Len() int { return len(s.frames) }

// Image returns the swapchain image acquired for the frame being recorded.
func (s *FrameSynchronizer) Image() uint32 { return s.image }

// Recording reports whether a frame is being recorded.
func (s *FrameSynchronizer) Recording() bool { return s.recording }

// Abandoned returns how many frames were abandoned so far.
func (s *FrameSynchronizer) Abandoned() int { return s.abandoned }

// Destroy destroys every frame. The device must be idle.
func (s *FrameSynchronizer) Destroy() {
	for _, f := range s.frames {
		s.destroyFrame(f)
	}
	s.frames = nil
}
