// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfxtest

import (
	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/gfx"
)

// Recorded command names.
const (
	OpBarrier           = "barrier"
	OpCopyBuffer        = "copyBuffer"
	OpCopyBufferToImage = "copyBufferToImage"
	OpBlit              = "blit"
	OpBeginRenderPass   = "beginRenderPass"
	OpEndRenderPass     = "endRenderPass"
	OpSetViewport       = "setViewport"
	OpSetScissor        = "setScissor"
	OpBindPipeline      = "bindPipeline"
	OpBindSets          = "bindDescriptorSets"
	OpBindVertexBuffer  = "bindVertexBuffer"
	OpBindIndexBuffer   = "bindIndexBuffer"
	OpDrawIndexed       = "drawIndexed"
)

// BindSets is the detail of a recorded OpBindSets.
type BindSets struct {
	Layout         gfx.PipelineLayout
	First          uint32
	Sets           []gfx.DescriptorSet
	DynamicOffsets []uint32
}

// DrawIndexed is the detail of a recorded OpDrawIndexed.
type DrawIndexed struct {
	IndexCount, InstanceCount, FirstIndex uint32
	VertexOffset                          int32
	FirstInstance                         uint32
}

// CreateCommandPool implements gfx.Device.
func (d *Device) CreateCommandPool(q gfx.Queue, transient bool) (gfx.CommandPool, error) {
	if err := d.fail("CreateCommandPool"); err != nil {
		return gfx.CommandPool{}, err
	}
	d.created(KindCommandPool)
	return gfx.CommandPool(d.commandPools.Insert(q)), nil
}

// DestroyCommandPool implements gfx.Device. Buffers allocated from the
// pool are freed with it.
func (d *Device) DestroyCommandPool(p gfx.CommandPool) {
	_, ok := d.commandPools.Remove(gfx.Handle(p))
	if ok {
		var owned []gfx.Handle
		d.commandBuffers.Each(func(h gfx.Handle, cb *CommandBufferObject) {
			if cb.Pool == p {
				owned = append(owned, h)
			}
		})
		for _, h := range owned {
			d.commandBuffers.Remove(h)
		}
	}
	d.destroyed(KindCommandPool, gfx.Handle(p), ok)
}

// AllocateCommandBuffer implements gfx.Device.
func (d *Device) AllocateCommandBuffer(p gfx.CommandPool) (gfx.CommandBuffer, error) {
	if err := d.fail("AllocateCommandBuffer"); err != nil {
		return gfx.CommandBuffer{}, err
	}
	if _, ok := d.commandPools.Get(gfx.Handle(p)); !ok {
		return gfx.CommandBuffer{}, gfx.ErrInvalidHandle
	}
	d.created(KindCommandBuffer)
	return gfx.CommandBuffer(d.commandBuffers.Insert(&CommandBufferObject{Pool: p})), nil
}

// FreeCommandBuffer implements gfx.Device.
func (d *Device) FreeCommandBuffer(p gfx.CommandPool, cb gfx.CommandBuffer) {
	if obj, ok := d.commandBuffers.Get(gfx.Handle(cb)); ok && obj.inFlight {
		d.Violations = append(d.Violations, "free of command buffer the GPU may still execute")
	}
	_, ok := d.commandBuffers.Remove(gfx.Handle(cb))
	d.destroyed(KindCommandBuffer, gfx.Handle(cb), ok)
}

func (d *Device) checkReusable(obj *CommandBufferObject) {
	if !gfx.Handle(obj.lastFence).Valid() {
		return
	}
	if f, ok := d.fences.Get(gfx.Handle(obj.lastFence)); ok && !f.Signaled {
		d.Violations = append(d.Violations, "command buffer reused while its fence is unsignaled")
	}
}

// BeginCommandBuffer implements gfx.Device.
func (d *Device) BeginCommandBuffer(cb gfx.CommandBuffer, oneTime bool) error {
	if err := d.fail("BeginCommandBuffer"); err != nil {
		return err
	}
	obj, ok := d.commandBuffers.Get(gfx.Handle(cb))
	if !ok {
		return gfx.ErrInvalidHandle
	}
	if obj.Recording {
		return errors.New("BeginCommandBuffer: already recording")
	}
	d.checkReusable(obj)
	obj.Recording = true
	obj.OneTime = oneTime
	obj.Commands = nil
	return nil
}

// EndCommandBuffer implements gfx.Device.
func (d *Device) EndCommandBuffer(cb gfx.CommandBuffer) error {
	if err := d.fail("EndCommandBuffer"); err != nil {
		return err
	}
	obj, ok := d.commandBuffers.Get(gfx.Handle(cb))
	if !ok {
		return gfx.ErrInvalidHandle
	}
	if !obj.Recording {
		return errors.New("EndCommandBuffer: not recording")
	}
	obj.Recording = false
	return nil
}

// ResetCommandBuffer implements gfx.Device.
func (d *Device) ResetCommandBuffer(cb gfx.CommandBuffer) error {
	if err := d.fail("ResetCommandBuffer"); err != nil {
		return err
	}
	obj, ok := d.commandBuffers.Get(gfx.Handle(cb))
	if !ok {
		return gfx.ErrInvalidHandle
	}
	d.checkReusable(obj)
	obj.Recording = false
	obj.Commands = nil
	return nil
}

func (d *Device) record(cb gfx.CommandBuffer, op string, detail interface{}) {
	c := Command{Buffer: cb, Op: op, Detail: detail}
	d.Log = append(d.Log, c)
	obj, ok := d.commandBuffers.Get(gfx.Handle(cb))
	if !ok || !obj.Recording {
		d.Violations = append(d.Violations, op+" recorded outside of a recording command buffer")
		return
	}
	obj.Commands = append(obj.Commands, c)
}

// CmdPipelineBarrier implements gfx.Device.
func (d *Device) CmdPipelineBarrier(cb gfx.CommandBuffer, barriers []gfx.ImageBarrier) {
	d.record(cb, OpBarrier, append([]gfx.ImageBarrier(nil), barriers...))
}

// CmdCopyBuffer implements gfx.Device.
func (d *Device) CmdCopyBuffer(cb gfx.CommandBuffer, c gfx.BufferCopy) {
	d.record(cb, OpCopyBuffer, c)
	src, ok1 := d.buffers.Get(gfx.Handle(c.Src))
	dst, ok2 := d.buffers.Get(gfx.Handle(c.Dst))
	if ok1 && ok2 {
		copy(dst.Data, src.Data[:c.Size])
	}
}

// CmdCopyBufferToImage implements gfx.Device.
func (d *Device) CmdCopyBufferToImage(cb gfx.CommandBuffer, c gfx.BufferImageCopy) {
	d.record(cb, OpCopyBufferToImage, c)
}

// CmdBlitImage implements gfx.Device.
func (d *Device) CmdBlitImage(cb gfx.CommandBuffer, b gfx.BlitInfo) {
	d.record(cb, OpBlit, b)
}

// CmdBeginRenderPass implements gfx.Device.
func (d *Device) CmdBeginRenderPass(cb gfx.CommandBuffer, b gfx.RenderPassBegin) {
	d.record(cb, OpBeginRenderPass, b)
}

// CmdEndRenderPass implements gfx.Device.
func (d *Device) CmdEndRenderPass(cb gfx.CommandBuffer) {
	d.record(cb, OpEndRenderPass, nil)
}

// CmdSetViewport implements gfx.Device.
func (d *Device) CmdSetViewport(cb gfx.CommandBuffer, v gfx.Viewport) {
	d.record(cb, OpSetViewport, v)
}

// CmdSetScissor implements gfx.Device.
func (d *Device) CmdSetScissor(cb gfx.CommandBuffer, e gfx.Extent2D) {
	d.record(cb, OpSetScissor, e)
}

// CmdBindPipeline implements gfx.Device.
func (d *Device) CmdBindPipeline(cb gfx.CommandBuffer, p gfx.Pipeline) {
	d.record(cb, OpBindPipeline, p)
}

// CmdBindDescriptorSets implements gfx.Device.
func (d *Device) CmdBindDescriptorSets(cb gfx.CommandBuffer, layout gfx.PipelineLayout, first uint32, sets []gfx.DescriptorSet, dynamicOffsets []uint32) {
	d.record(cb, OpBindSets, BindSets{
		Layout:         layout,
		First:          first,
		Sets:           append([]gfx.DescriptorSet(nil), sets...),
		DynamicOffsets: append([]uint32(nil), dynamicOffsets...),
	})
}

// CmdBindVertexBuffer implements gfx.Device.
func (d *Device) CmdBindVertexBuffer(cb gfx.CommandBuffer, b gfx.Buffer, offset uint64) {
	d.record(cb, OpBindVertexBuffer, b)
}

// CmdBindIndexBuffer implements gfx.Device.
func (d *Device) CmdBindIndexBuffer(cb gfx.CommandBuffer, b gfx.Buffer, offset uint64, t gfx.IndexType) {
	d.record(cb, OpBindIndexBuffer, b)
}

// CmdDrawIndexed implements gfx.Device.
func (d *Device) CmdDrawIndexed(cb gfx.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	d.record(cb, OpDrawIndexed, DrawIndexed{
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		FirstIndex:    firstIndex,
		VertexOffset:  vertexOffset,
		FirstInstance: firstInstance,
	})
}

// Backend is a fake gfx.Backend handing out a single Device.
type Backend struct {
	AdapterList []gfx.AdapterInfo
	Device      *Device
	OpenErr     error

	Opened   int
	Surface  gfx.Surface
	Released bool
}

// NewBackend returns a backend with one suitable adapter.
func NewBackend() *Backend {
	dev := NewDevice()
	return &Backend{
		AdapterList: []gfx.AdapterInfo{dev.Info},
		Device:      dev,
		Opened:      -1,
	}
}

// Adapters implements gfx.Backend.
func (b *Backend) Adapters() ([]gfx.AdapterInfo, error) {
	return append([]gfx.AdapterInfo(nil), b.AdapterList...), nil
}

// Open implements gfx.Backend.
func (b *Backend) Open(adapter int, surface gfx.Surface) (gfx.Device, error) {
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	if adapter < 0 || adapter >= len(b.AdapterList) {
		return nil, errors.Newf("adapter %d out of range", adapter)
	}
	b.Opened = adapter
	b.Surface = surface
	b.Device.Info = b.AdapterList[adapter]
	return b.Device, nil
}

// Release implements gfx.Backend.
func (b *Backend) Release() {
	b.Released = true
}
