// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"

	"github.com/koru3d/lumen/gfx"
)

// ResourceKind tags the kind of object a Deletion destroys.
type ResourceKind int

// Kinds of objects the deletion queue knows how to destroy.
const (
	KindBuffer ResourceKind = iota + 1
	KindImage
	KindImageView
	KindSampler
	KindShaderModule
	KindDescriptorSetLayout
	KindDescriptorPool
	KindPipelineLayout
	KindPipeline
	KindRenderPass
	KindFramebuffer
	KindCommandPool
	KindSemaphore
	KindFence
	KindSwapchain
)

var kindNames = map[ResourceKind]string{
	KindBuffer:              "buffer",
	KindImage:               "image",
	KindImageView:           "image view",
	KindSampler:             "sampler",
	KindShaderModule:        "shader module",
	KindDescriptorSetLayout: "descriptor set layout",
	KindDescriptorPool:      "descriptor pool",
	KindPipelineLayout:      "pipeline layout",
	KindPipeline:            "pipeline",
	KindRenderPass:          "render pass",
	KindFramebuffer:         "framebuffer",
	KindCommandPool:         "command pool",
	KindSemaphore:           "semaphore",
	KindFence:               "fence",
	KindSwapchain:           "swapchain",
}

func (k ResourceKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ResourceKind(%d)", int(k))
}

// Deletion is a deferred destruction of one object.
type Deletion struct {
	Kind   ResourceKind
	Handle gfx.Handle
}

func (d Deletion) String() string {
	return d.Kind.String() + " " + d.Handle.String()
}

// Deletion constructors, one per kind.
func DeleteBuffer(b gfx.Buffer) Deletion   { return Deletion{KindBuffer, gfx.Handle(b)} }
func DeleteImage(i gfx.Image) Deletion     { return Deletion{KindImage, gfx.Handle(i)} }
func DeleteSampler(s gfx.Sampler) Deletion { return Deletion{KindSampler, gfx.Handle(s)} }
func DeleteFence(f gfx.Fence) Deletion     { return Deletion{KindFence, gfx.Handle(f)} }
func DeleteImageView(v gfx.ImageView) Deletion {
	return Deletion{KindImageView, gfx.Handle(v)}
}
func DeleteShaderModule(m gfx.ShaderModule) Deletion {
	return Deletion{KindShaderModule, gfx.Handle(m)}
}
func DeleteDescriptorSetLayout(l gfx.DescriptorSetLayout) Deletion {
	return Deletion{KindDescriptorSetLayout, gfx.Handle(l)}
}
func DeleteDescriptorPool(p gfx.DescriptorPool) Deletion {
	return Deletion{KindDescriptorPool, gfx.Handle(p)}
}
func DeletePipelineLayout(l gfx.PipelineLayout) Deletion {
	return Deletion{KindPipelineLayout, gfx.Handle(l)}
}
func DeletePipeline(p gfx.Pipeline) Deletion {
	return Deletion{KindPipeline, gfx.Handle(p)}
}
func DeleteRenderPass(rp gfx.RenderPass) Deletion {
	return Deletion{KindRenderPass, gfx.Handle(rp)}
}
func DeleteFramebuffer(fb gfx.Framebuffer) Deletion {
	return Deletion{KindFramebuffer, gfx.Handle(fb)}
}
func DeleteCommandPool(p gfx.CommandPool) Deletion {
	return Deletion{KindCommandPool, gfx.Handle(p)}
}
func DeleteSemaphore(s gfx.Semaphore) Deletion {
	return Deletion{KindSemaphore, gfx.Handle(s)}
}
func DeleteSwapchain(sc gfx.Swapchain) Deletion {
	return Deletion{KindSwapchain, gfx.Handle(sc)}
}

func (d Deletion) destroy(dev gfx.Device) {
	switch d.Kind {
	case KindBuffer:
		dev.DestroyBuffer(gfx.Buffer(d.Handle))
	case KindImage:
		dev.DestroyImage(gfx.Image(d.Handle))
	case KindImageView:
		dev.DestroyImageView(gfx.ImageView(d.Handle))
	case KindSampler:
		dev.DestroySampler(gfx.Sampler(d.Handle))
	case KindShaderModule:
		dev.DestroyShaderModule(gfx.ShaderModule(d.Handle))
	case KindDescriptorSetLayout:
		dev.DestroyDescriptorSetLayout(gfx.DescriptorSetLayout(d.Handle))
	case KindDescriptorPool:
		dev.DestroyDescriptorPool(gfx.DescriptorPool(d.Handle))
	case KindPipelineLayout:
		dev.DestroyPipelineLayout(gfx.PipelineLayout(d.Handle))
	case KindPipeline:
		dev.DestroyPipeline(gfx.Pipeline(d.Handle))
	case KindRenderPass:
		dev.DestroyRenderPass(gfx.RenderPass(d.Handle))
	case KindFramebuffer:
		dev.DestroyFramebuffer(gfx.Framebuffer(d.Handle))
	case KindCommandPool:
		dev.DestroyCommandPool(gfx.CommandPool(d.Handle))
	case KindSemaphore:
		dev.DestroySemaphore(gfx.Semaphore(d.Handle))
	case KindFence:
		dev.DestroyFence(gfx.Fence(d.Handle))
	case KindSwapchain:
		dev.DestroySwapchain(gfx.Swapchain(d.Handle))
	}
}

// DeletionQueue defers destruction of objects until the GPU is known
// to be done with them. Flush destroys in reverse push order, so objects
// go away before whatever they were created from.
type DeletionQueue struct {
	items []Deletion
}

// Push queues deletions. Invalid handles are ignored.
func (q *DeletionQueue) Push(items ...Deletion) {
	for _, d := range items {
		if d.Handle.Valid() {
			q.items = append(q.items, d)
		}
	}
}

// Len returns the number of queued deletions.
func (q *DeletionQueue) Len() int {
	return len(q.items)
}

// Pending returns a copy of the queued deletions in push order.
func (q *DeletionQueue) Pending() []Deletion {
	return append([]Deletion(nil), q.items...)
}

// Flush destroys every queued object, last pushed first, and empties the queue.
func (q *DeletionQueue) Flush(dev gfx.Device) {
	for i := len(q.items) - 1; i >= 0; i-- {
		q.items[i].destroy(dev)
	}
	q.items = q.items[:0]
}
