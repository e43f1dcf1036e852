// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/koru3d/lumen/gfx"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Renderer RendererConfiguration
	Assets   AssetConfiguration
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the delay between window event polls in milliseconds
	EventPollDelay int
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	FramesInFlight   int
	DeviceExtensions []string
	Validation       bool
	PreferDiscrete   bool

	// PresentMode is the preferred present mode, FIFO is used when the
	// surface does not support it.
	PresentMode gfx.PresentMode

	ScreenWidth  uint32
	ScreenHeight uint32

	ClearColor [4]float32
	MaxObjects int
}

// AssetConfiguration says where assets are read from. When Archive is set
// it is searched before Root.
type AssetConfiguration struct {
	Root    string
	Archive string
}

// DefaultConfiguration returns the configuration used when nothing overrides it.
func DefaultConfiguration() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			EventPollDelay:  10,
		},
		Renderer: RendererConfiguration{
			FramesInFlight: DefaultFramesInFlight,
			PreferDiscrete: true,
			PresentMode:    gfx.PresentModeMailbox,
			ScreenWidth:    1280,
			ScreenHeight:   720,
			ClearColor:     [4]float32{0.01, 0.01, 0.02, 1},
			MaxObjects:     10000,
		},
		Assets: AssetConfiguration{
			Root: "assets",
		},
	}
}

// Validate reports configuration that cannot work.
func (c Configuration) Validate() error {
	switch {
	case c.Renderer.FramesInFlight < 1:
		return errors.Newf("frames in flight must be at least 1, got %d", c.Renderer.FramesInFlight)
	case c.Renderer.MaxObjects < 1:
		return errors.Newf("max objects must be at least 1, got %d", c.Renderer.MaxObjects)
	case c.Time.FramesPerSecond < 0:
		return errors.Newf("frames per second must not be negative, got %d", c.Time.FramesPerSecond)
	case c.Time.EventPollDelay < 0:
		return errors.Newf("event poll delay must not be negative, got %d", c.Time.EventPollDelay)
	}
	return nil
}

var presentModes = map[string]gfx.PresentMode{
	"immediate":    gfx.PresentModeImmediate,
	"mailbox":      gfx.PresentModeMailbox,
	"fifo":         gfx.PresentModeFIFO,
	"fifo-relaxed": gfx.PresentModeFIFORelaxed,
}

// LoadConfiguration reads the given env files, when any, and overlays
// LUMEN_ variables from the environment onto the defaults.
func LoadConfiguration(files ...string) (Configuration, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Configuration{}, errors.Wrap(err, "load env files")
		}
	}
	envy.Reload()

	cfg := DefaultConfiguration()
	var err error
	intVar := func(name string, dst *int) {
		if err != nil {
			return
		}
		if v := envy.Get(name, ""); v != "" {
			var n int
			if n, err = strconv.Atoi(v); err != nil {
				err = errors.Wrapf(err, "parse %s", name)
				return
			}
			*dst = n
		}
	}
	uintVar := func(name string, dst *uint32) {
		if err != nil {
			return
		}
		if v := envy.Get(name, ""); v != "" {
			var n uint64
			if n, err = strconv.ParseUint(v, 10, 32); err != nil {
				err = errors.Wrapf(err, "parse %s", name)
				return
			}
			*dst = uint32(n)
		}
	}
	boolVar := func(name string, dst *bool) {
		if err != nil {
			return
		}
		if v := envy.Get(name, ""); v != "" {
			var b bool
			if b, err = strconv.ParseBool(v); err != nil {
				err = errors.Wrapf(err, "parse %s", name)
				return
			}
			*dst = b
		}
	}

	intVar("LUMEN_FPS", &cfg.Time.FramesPerSecond)
	intVar("LUMEN_EVENT_POLL_DELAY", &cfg.Time.EventPollDelay)
	uintVar("LUMEN_WIDTH", &cfg.Renderer.ScreenWidth)
	uintVar("LUMEN_HEIGHT", &cfg.Renderer.ScreenHeight)
	intVar("LUMEN_FRAMES_IN_FLIGHT", &cfg.Renderer.FramesInFlight)
	intVar("LUMEN_MAX_OBJECTS", &cfg.Renderer.MaxObjects)
	boolVar("LUMEN_VALIDATION", &cfg.Renderer.Validation)
	boolVar("LUMEN_PREFER_DISCRETE", &cfg.Renderer.PreferDiscrete)
	if err != nil {
		return Configuration{}, err
	}

	if v := envy.Get("LUMEN_PRESENT_MODE", ""); v != "" {
		mode, ok := presentModes[strings.ToLower(v)]
		if !ok {
			return Configuration{}, errors.Newf("parse LUMEN_PRESENT_MODE: unknown present mode %q", v)
		}
		cfg.Renderer.PresentMode = mode
	}
	if v := envy.Get("LUMEN_DEVICE_EXTENSIONS", ""); v != "" {
		cfg.Renderer.DeviceExtensions = strings.Split(v, ",")
	}
	cfg.Assets.Root = envy.Get("LUMEN_ASSET_ROOT", cfg.Assets.Root)
	cfg.Assets.Archive = envy.Get("LUMEN_ASSET_ARCHIVE", cfg.Assets.Archive)

	return cfg, cfg.Validate()
}
