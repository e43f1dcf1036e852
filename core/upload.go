// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/gfx"
)

// FrameResources is what resource caches need from the frame loop: a way
// to run one-shot transfers and the deletion queue of the frame being
// recorded.
type FrameResources interface {
	Transfer(record func(gfx.CommandBuffer) error) error
	Deletions() *DeletionQueue
}

// submitOneShot records a command buffer from pool, submits it to the
// transfer queue and waits for the queue to drain. The buffer is freed on
// every path.
func submitOneShot(dev gfx.Device, pool gfx.CommandPool, record func(gfx.CommandBuffer) error) error {
	cb, err := dev.AllocateCommandBuffer(pool)
	if err != nil {
		return errors.Wrap(err, "allocate transfer command buffer")
	}
	defer dev.FreeCommandBuffer(pool, cb)

	if err := dev.BeginCommandBuffer(cb, true); err != nil {
		return errors.Wrap(err, "begin transfer")
	}
	if err := record(cb); err != nil {
		dev.EndCommandBuffer(cb)
		return err
	}
	if err := dev.EndCommandBuffer(cb); err != nil {
		return errors.Wrap(err, "end transfer")
	}
	if err := dev.Submit(gfx.QueueTransfer, gfx.SubmitInfo{Commands: []gfx.CommandBuffer{cb}}); err != nil {
		return errors.Wrap(err, "submit transfer")
	}
	if err := dev.WaitQueueIdle(gfx.QueueTransfer); err != nil {
		// cb and the caller's staging data stay in use until the device idles.
		err = errors.Wrap(err, "wait for transfer")
		if idleErr := dev.WaitIdle(); idleErr != nil {
			return errors.CombineErrors(err, errors.Wrap(idleErr, "wait for device idle"))
		}
		return err
	}
	return nil
}

// stageBuffer creates a host visible transfer source holding data.
func stageBuffer(dev gfx.ResourceDevice, data []byte) (gfx.Buffer, error) {
	staging, err := dev.CreateBuffer(gfx.BufferInfo{
		Size:   uint64(len(data)),
		Usage:  gfx.BufferTransferSrc,
		Memory: gfx.MemoryHostVisible,
	})
	if err != nil {
		return gfx.Buffer{}, errors.Wrap(err, "create staging buffer")
	}
	if err := dev.WriteBuffer(staging, 0, data); err != nil {
		dev.DestroyBuffer(staging)
		return gfx.Buffer{}, errors.Wrap(err, "fill staging buffer")
	}
	return staging, nil
}

// uploadBuffer creates a device local buffer with the given usage and
// fills it with data through a staging buffer.
func uploadBuffer(dev gfx.Device, frames FrameResources, usage gfx.BufferUsage, data []byte) (gfx.Buffer, error) {
	staging, err := stageBuffer(dev, data)
	if err != nil {
		return gfx.Buffer{}, err
	}
	defer dev.DestroyBuffer(staging)

	buf, err := dev.CreateBuffer(gfx.BufferInfo{
		Size:   uint64(len(data)),
		Usage:  usage | gfx.BufferTransferDst,
		Memory: gfx.MemoryDeviceLocal,
	})
	if err != nil {
		return gfx.Buffer{}, errors.Wrap(err, "create device buffer")
	}
	err = frames.Transfer(func(cb gfx.CommandBuffer) error {
		dev.CmdCopyBuffer(cb, gfx.BufferCopy{Src: staging, Dst: buf, Size: uint64(len(data))})
		return nil
	})
	if err != nil {
		dev.DestroyBuffer(buf)
		return gfx.Buffer{}, err
	}
	return buf, nil
}
