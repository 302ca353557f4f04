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

package main

import (
	"fmt"
	"os"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lnetcore/corelink/datasource"
	"github.com/lnetcore/corelink/datasource/sources/database"
	"github.com/lnetcore/corelink/datasource/sources/datafile"
	"github.com/lnetcore/corelink/datasource/sources/ftpfile"
	"github.com/lnetcore/corelink/datasource/sources/httpsource"
	"github.com/lnetcore/corelink/datasource/sources/virtual"
	"github.com/lnetcore/corelink/httpclient"
	"github.com/lnetcore/corelink/logctx"
	"github.com/lnetcore/corelink/runtimecfg"
	"github.com/lnetcore/corelink/timer"
)

// Runtime is the in-process wiring one corelinkctl invocation builds: a
// Loop/Scheduler pair, a Manager, and whatever sources the properties file
// named and this factory knows how to construct standalone, without an
// already-running daemon supplying a live transport.
type Runtime struct {
	Loop      *timer.Loop
	Scheduler *timer.Scheduler
	Manager   *datasource.Manager
	Log       logctx.Logger
	DB        *gorm.DB // set only when a database source was built
	Sources   []datasource.Source
}

// buildRuntime loads cfgPath/propsPath (empty means defaults / none) and
// constructs every source named in the properties file, registering each on
// the returned Manager. Sources are not connected here; callers use
// ConnectAll.
func buildRuntime(cfgPath, propsPath string) (*Runtime, error) {
	cfg, cerr := runtimecfg.Load(cfgPath)
	if cerr != nil {
		return nil, cerr
	}
	log := logctx.New(os.Stderr, cfg.LogrusLevel())

	rt := &Runtime{
		Loop: timer.NewLoop(time.Now),
		Log:  log,
	}
	rt.Scheduler = timer.NewScheduler(rt.Loop)
	rt.Manager = datasource.NewManager(log)

	if propsPath == "" {
		return rt, nil
	}
	f, err := os.Open(propsPath)
	if err != nil {
		return nil, fmt.Errorf("opening source properties: %w", err)
	}
	defer f.Close()

	props, perr := runtimecfg.DecodeSourceProperties(f)
	if perr != nil {
		return nil, perr
	}

	now := rt.Loop.Now()
	for _, sp := range props.Sources {
		src, err := rt.buildSource(sp, now)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", sp.Name, err)
		}
		rt.Manager.AddSource(src)
		rt.Sources = append(rt.Sources, src)
	}
	return rt, nil
}

// ConnectAll connects every source this Runtime built.
func (rt *Runtime) ConnectAll() {
	for _, src := range rt.Sources {
		src.Connect()
	}
}

// DisconnectAll disconnects every source this Runtime built.
func (rt *Runtime) DisconnectAll() {
	for _, src := range rt.Sources {
		src.Disconnect()
	}
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func dur(p *string, fallback time.Duration) time.Duration {
	if p == nil || *p == "" {
		return fallback
	}
	d, err := time.ParseDuration(*p)
	if err != nil {
		return fallback
	}
	return d
}

// buildSource constructs the concrete datasource.Source matching sp.Kind.
// loggernet and bmp5 are not buildable here: both require a live
// transport (a messaging.Router session to an already-connected relay, or
// a serial PortWriter) this standalone CLI invocation has no way to
// establish from static properties alone, unlike the other five kinds
// which are fully self-contained given the settings on disk.
func (rt *Runtime) buildSource(sp runtimecfg.SourceProperties, now time.Time) (datasource.Source, error) {
	st := sp.Settings
	interval := dur(st.PollScheduleInterval, 10*time.Second)

	switch sp.Kind {
	case "database":
		path := str(st.FileName)
		if path == "" {
			path = sp.Name + ".db"
		}
		db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("opening sqlite database: %w", err)
		}
		rt.DB = db
		src, derr := database.Open(sp.Name, db, rt.Manager, rt.Scheduler, interval, now, rt.Log)
		if derr != nil {
			return nil, derr
		}
		return src, nil

	case "datafile":
		return datafile.New(sp.Name, str(st.Station), str(st.Table), str(st.Path), rt.Manager, rt.Loop, rt.Log), nil

	case "ftpfile":
		dropDir := str(st.DropDir)
		if dropDir == "" {
			dropDir = "."
		}
		return ftpfile.New(sp.Name, str(st.Station), str(st.Table), str(st.ServerAddress), str(st.UserName), str(st.Password),
			dropDir, ftpfile.NewLiveDialer(), rt.Manager, rt.Scheduler, interval, now, rt.Log), nil

	case "virtual":
		return virtual.New(sp.Name, str(st.Station), str(st.Table), rt.Manager, rt.Scheduler, interval, now, rt.Log), nil

	case "httpsource":
		conn := httpclient.New(rt.Loop, rt.Log, str(st.ServerAddress), st.UseHTTPS != nil && *st.UseHTTPS)
		var auth httpclient.Auth
		if st.UserName != nil && st.Password != nil {
			auth = &httpclient.BasicAuth{User: *st.UserName, Password: *st.Password}
		}
		return httpsource.New(sp.Name, str(st.Station), str(st.Table), str(st.Path), auth, rt.Manager, rt.Loop, conn, rt.Scheduler, interval, now, rt.Log), nil

	case "loggernet", "bmp5":
		return nil, fmt.Errorf("kind %q requires a live transport corelinkctl cannot establish standalone", sp.Kind)

	default:
		return nil, fmt.Errorf("unknown source kind %q", sp.Kind)
	}
}
