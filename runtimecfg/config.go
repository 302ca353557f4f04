/*
 * MIT License
 *
 * Copyright (c) 2024 corelink authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package runtimecfg loads the application-level runtime configuration
// (scheduler tick resolution, byte-log rotation policy, default transport
// timeouts, logging level) with github.com/spf13/viper, decoding the
// layered settings into a typed Config via
// github.com/mitchellh/mapstructure, the way the teacher repository's
// config package composes its components from a single options tree.
//
// Persisted source properties (spec.md section 6's XML-per-source format)
// are handled separately, in sourceprops.go, against the standard
// library's encoding/xml: that wire format is exact and mandated by the
// spec, not a free choice viper's layered-config model fits.
package runtimecfg

import (
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/lnetcore/corelink/errs"
)

// SchedulerConfig controls the single shared timer.Loop/Scheduler pairing
// every component in the process is driven from.
type SchedulerConfig struct {
	// TickResolution is the configured period of the loop's maintenance
	// pass (clock regression detection, per spec.md section 4.A).
	// timer.Loop does not read it; its maintenance pass runs on a fixed
	// 10-second interval.
	TickResolution time.Duration `mapstructure:"tick-resolution"`
	// ClockRegressionThreshold is the "moved backwards by more than" bound
	// from section 4.A's open question; exposed here as configuration per
	// that section's note that the 5-minute figure is empirical. Loading it
	// does not change timer.RegressionThreshold.
	ClockRegressionThreshold time.Duration `mapstructure:"clock-regression-threshold"`
}

// ByteLogConfig describes bale rotation for a transport's bytelog.Log,
// per section 4.B/6. No code in this tree builds a bytelog.Log from it.
type ByteLogConfig struct {
	Dir          string        `mapstructure:"dir"`
	MaxBaleBytes int64         `mapstructure:"max-bale-bytes"`
	MaxBaleAge   time.Duration `mapstructure:"max-bale-age"`
	Compress     bool          `mapstructure:"compress"`
}

// TimeoutsConfig carries the layered timeout defaults of section 5: the
// messaging fabric's transmit/receive heartbeat, the websocket ping
// interval, the HTTP connection's idle wait_interval, and the PakBus
// link's default link_timeout. The owning packages use their own
// constants and do not read these fields.
type TimeoutsConfig struct {
	MessagingHeartbeat time.Duration `mapstructure:"messaging-heartbeat"`
	WebsocketPing      time.Duration `mapstructure:"websocket-ping"`
	HTTPWaitInterval   time.Duration `mapstructure:"http-wait-interval"`
	PakBusLinkTimeout  time.Duration `mapstructure:"pakbus-link-timeout"`
}

// LoggingConfig selects the logrus backend's level. Output routing is not
// configured here.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Config is the full runtime configuration tree, loaded once at process
// start. cmd/corelinkctl reads only its Logging section (through
// LogrusLevel); no component constructor takes the other sections.
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	ByteLog   ByteLogConfig   `mapstructure:"byte-log"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// Defaults returns the configuration corelink runs with absent an
// override file. Its timeout values equal the constants the owning
// packages declare (pakbus.DefaultLinkTimeout, httpclient.DefaultWaitInterval,
// websocket.PingInterval, messaging.HeartbeatInterval), written here as
// literals rather than references, so the two are kept equal by hand.
func Defaults() Config {
	return Config{
		Scheduler: SchedulerConfig{
			TickResolution:           time.Second,
			ClockRegressionThreshold: 5 * time.Minute,
		},
		ByteLog: ByteLogConfig{
			Dir:          "./log",
			MaxBaleBytes: 10 << 20,
			MaxBaleAge:   24 * time.Hour,
			Compress:     true,
		},
		Timeouts: TimeoutsConfig{
			MessagingHeartbeat: 60 * time.Second,
			WebsocketPing:      60 * time.Second,
			HTTPWaitInterval:   30 * time.Second,
			PakBusLinkTimeout:  40 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path (YAML, TOML, or JSON, by extension) with viper, layering
// it over Defaults() so a config file only needs to name what it
// overrides.
func Load(path string) (Config, errs.Error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cfg, errs.New(errs.ClassResource, 0, "runtimecfg: reading config file failed", err)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return cfg, errs.New(errs.ClassResource, 0, "runtimecfg: building decoder failed", err)
	}
	if err := dec.Decode(v.AllSettings()); err != nil {
		return cfg, errs.New(errs.ClassParse, 0, "runtimecfg: decoding config failed", err)
	}
	return cfg, nil
}

// LogrusLevel parses Logging.Level, falling back to logrus.InfoLevel on an
// unrecognised string rather than failing process start over a typo in a
// config file.
func (c Config) LogrusLevel() logrus.Level {
	lvl, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
