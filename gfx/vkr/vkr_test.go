// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"encoding/binary"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/gfx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestResultMarksSentinels(t *testing.T) {
	assert.NoError(t, result(vk.Success, "vk.Nothing()"))

	cases := []struct {
		res      vk.Result
		sentinel error
	}{
		{vk.Suboptimal, gfx.ErrSuboptimal},
		{vk.ErrorOutOfDate, gfx.ErrOutOfDate},
		{vk.ErrorFragmentedPool, gfx.ErrFragmentedPool},
		{vk.ErrorOutOfPoolMemory, gfx.ErrOutOfPoolMemory},
		{vk.ErrorDeviceLost, gfx.ErrDeviceLost},
	}
	for _, c := range cases {
		err := result(c.res, "vk.Call()")
		require.Error(t, err)
		assert.True(t, errors.Is(err, c.sentinel), "result %d", c.res)
		assert.Contains(t, err.Error(), "vk.Call()")
	}

	assert.True(t, gfx.IsPoolExhausted(result(vk.ErrorOutOfPoolMemory, "vk.AllocateDescriptorSets()")))
	assert.True(t, gfx.IsSwapchainStale(result(vk.Suboptimal, "vk.AcquireNextImage()")))

	err := result(vk.ErrorOutOfHostMemory, "vk.CreateBuffer()")
	require.Error(t, err)
	assert.False(t, gfx.IsPoolExhausted(err))
	assert.False(t, gfx.IsSwapchainStale(err))
}

func TestFindMemoryType(t *testing.T) {
	local := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	host := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	types := []vk.MemoryPropertyFlags{local, host, local | host}

	idx, err := findMemoryType(types, 0b111, memoryProperties(gfx.MemoryDeviceLocal))
	require.NoError(t, err)
	assert.EqualValues(t, 0, idx)

	idx, err = findMemoryType(types, 0b111, memoryProperties(gfx.MemoryHostVisible))
	require.NoError(t, err)
	assert.EqualValues(t, 1, idx)

	idx, err = findMemoryType(types, 0b100, memoryProperties(gfx.MemoryDeviceLocal))
	require.NoError(t, err)
	assert.EqualValues(t, 2, idx)

	_, err = findMemoryType(types, 0b001, memoryProperties(gfx.MemoryHostVisible))
	assert.True(t, errors.Is(err, ErrNoMemoryType))
}

func TestSafeStrings(t *testing.T) {
	assert.Equal(t, "a\x00", safeString("a"))
	assert.Equal(t, "a\x00", safeString("a\x00"))
	assert.Equal(t, []string{"VK_KHR_surface\x00", "VK_KHR_swapchain\x00"},
		safeStrings([]string{"VK_KHR_surface", "VK_KHR_swapchain\x00"}))
	assert.Empty(t, safeStrings(nil))
}

func TestSliceUint32(t *testing.T) {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:], 0x07230203)
	binary.LittleEndian.PutUint32(data[4:], 1)
	binary.LittleEndian.PutUint32(data[8:], 2)

	words := sliceUint32(data)
	require.Len(t, words, 3)
	assert.Equal(t, binary.LittleEndian.Uint32(data[8:]), words[2])
	assert.Nil(t, sliceUint32([]byte{1, 2}))
}

func TestRenderPassAttachmentOrder(t *testing.T) {
	info := gfx.RenderPassInfo{
		ColorFormat: gfx.FormatBGRA8Unorm,
		DepthFormat: gfx.FormatD32Float,
		Samples:     gfx.Samples1,
	}
	attachments, color, depth, resolve := renderPassAttachments(info)
	require.Len(t, attachments, 2)
	assert.Equal(t, vk.Format(gfx.FormatD32Float), attachments[0].Format)
	assert.Equal(t, vk.Format(gfx.FormatBGRA8Unorm), attachments[1].Format)
	assert.Equal(t, vk.ImageLayoutPresentSrc, attachments[1].FinalLayout)
	assert.EqualValues(t, 1, color.Attachment)
	assert.EqualValues(t, 0, depth.Attachment)
	assert.Nil(t, resolve)
	assert.Len(t, clearValues(info, gfx.RenderPassBegin{}), 2)

	info.Samples = gfx.Samples4
	attachments, color, depth, resolve = renderPassAttachments(info)
	require.Len(t, attachments, 3)
	assert.Equal(t, vk.SampleCount4Bit, attachments[0].Samples)
	assert.Equal(t, vk.SampleCount4Bit, attachments[1].Samples)
	assert.Equal(t, vk.SampleCount1Bit, attachments[2].Samples)
	assert.Equal(t, vk.ImageLayoutPresentSrc, attachments[2].FinalLayout)
	assert.EqualValues(t, 0, color.Attachment)
	assert.EqualValues(t, 1, depth.Attachment)
	require.Len(t, resolve, 1)
	assert.EqualValues(t, 2, resolve[0].Attachment)
	assert.Len(t, clearValues(info, gfx.RenderPassBegin{}), 3)
}

func TestLayoutAccess(t *testing.T) {
	access, stage := layoutAccess(gfx.LayoutUndefined)
	assert.Zero(t, access)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), stage)

	access, stage = layoutAccess(gfx.LayoutTransferDst)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), access)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), stage)

	access, stage = layoutAccess(gfx.LayoutShaderReadOnly)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderReadBit), access)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), stage)
}

func BenchmarkSliceUint32Small(b *testing.B) {
	data := make([]byte, 100)
	for idx := 0; idx < b.N; idx++ {
		sliceUint32(data)
	}
}

func BenchmarkSliceUint32Medium(b *testing.B) {
	data := make([]byte, 1000)
	for idx := 0; idx < b.N; idx++ {
		sliceUint32(data)
	}
}

func BenchmarkSliceUint32Big(b *testing.B) {
	data := make([]byte, 100000)
	for idx := 0; idx < b.N; idx++ {
		sliceUint32(data)
	}
}
