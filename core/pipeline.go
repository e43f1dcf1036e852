// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/gfx"
	"github.com/sirupsen/logrus"
)

// pipelineLayoutKey renders set layouts and push constant ranges into a
// comparable string. Handles are unique while alive, so equal keys mean
// equal layouts.
func pipelineLayoutKey(info gfx.PipelineLayoutInfo) string {
	var b strings.Builder
	for _, l := range info.SetLayouts {
		fmt.Fprintf(&b, "s%s;", gfx.Handle(l))
	}
	for _, r := range info.PushConstants {
		fmt.Fprintf(&b, "p%x:%d:%d;", uint32(r.Stages), r.Offset, r.Size)
	}
	return b.String()
}

// PipelineLayoutCache creates one pipeline layout per distinct combination
// of set layouts and push constant ranges.
type PipelineLayoutCache struct {
	device  gfx.PipelineDevice
	log     logrus.FieldLogger
	layouts map[string]gfx.PipelineLayout
}

// NewPipelineLayoutCache creates an empty cache.
func NewPipelineLayoutCache(device gfx.PipelineDevice, logger logrus.FieldLogger) *PipelineLayoutCache {
	return &PipelineLayoutCache{
		device:  device,
		log:     componentLogger(logger, "pipeline-layouts"),
		layouts: make(map[string]gfx.PipelineLayout),
	}
}

// Create returns the layout for the given sets and ranges.
func (c *PipelineLayoutCache) Create(setLayouts []gfx.DescriptorSetLayout, pushRanges []gfx.PushConstantRange) (gfx.PipelineLayout, error) {
	info := gfx.PipelineLayoutInfo{SetLayouts: setLayouts, PushConstants: pushRanges}
	key := pipelineLayoutKey(info)
	if l, ok := c.layouts[key]; ok {
		return l, nil
	}
	l, err := c.device.CreatePipelineLayout(info)
	if err != nil {
		return gfx.PipelineLayout{}, errors.Wrap(err, "create pipeline layout")
	}
	c.layouts[key] = l
	c.log.WithField("sets", len(setLayouts)).Debug("Pipeline layout created")
	return l, nil
}

// Len returns the number of layouts held.
func (c *PipelineLayoutCache) Len() int {
	return len(c.layouts)
}

// Destroy destroys every layout.
func (c *PipelineLayoutCache) Destroy() {
	for _, l := range c.layouts {
		c.device.DestroyPipelineLayout(l)
	}
	c.layouts = make(map[string]gfx.PipelineLayout)
}
