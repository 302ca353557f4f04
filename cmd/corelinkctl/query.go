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
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lnetcore/corelink/datasource"
	"github.com/lnetcore/corelink/expression"
)

var flagQueryOnce bool

// exprSink is a datasource.Sink that feeds every arriving record into the
// expression.Program's value map and re-evaluates it, printing the result
// each time a fresh batch advances the expression's free variables — the
// "live data subscription" section 4.M promises a compiled expression.
type exprSink struct {
	mu     sync.Mutex
	values map[string]float64
	prog   *expression.Program // set once Compile returns
	once   bool
	stop   chan struct{}
}

func newExprSink() *exprSink {
	return &exprSink{values: make(map[string]float64)}
}

func (s *exprSink) OnSinkReady(req *datasource.Request, rec *datasource.Record) {
	fmt.Printf("ready: %s (station=%s table=%s)\n", req.URI, rec.Desc.Station, rec.Desc.Table)
}

func (s *exprSink) OnSinkFailure(req *datasource.Request, code datasource.FailureCode) {
	fmt.Printf("failed: %s (code %d)\n", req.URI, code)
}

func (s *exprSink) OnSinkRecords(reqs []*datasource.Request, recs []*datasource.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range reqs {
		for _, rec := range recs {
			v, ok := recordValue(req, rec)
			if !ok {
				continue
			}
			s.values[req.URI] = v
		}
	}
	if s.prog == nil {
		return
	}
	result, err := s.prog.Eval(s.values)
	if err != nil {
		fmt.Printf("eval error: %v\n", err)
		return
	}
	fmt.Printf("%s = %v\n", s.prog.Source, result)
	if flagQueryOnce && s.stop != nil {
		select {
		case <-s.stop:
		default:
			close(s.stop)
		}
	}
}

// recordValue picks the value out of rec the Request's value-index window
// names, defaulting to the first slot for a whole-record window.
func recordValue(req *datasource.Request, rec *datasource.Record) (float64, bool) {
	idx := req.ValueIndexBegin
	if idx < 0 || idx >= len(rec.Slots) {
		if len(rec.Slots) == 0 {
			return 0, false
		}
		idx = 0
	}
	return rec.Slots[idx].AsFloat(), true
}

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <expression>",
		Short: "Compile an expression and print its live value as records arrive",
		Long: "query compiles its argument the way section 4.M's make_expression does: one\n" +
			"Request per free variable, submitted to the Manager, with the engine\n" +
			"re-evaluated and printed every time a fresh batch of records lands.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(flagConfig, flagSources)
			if err != nil {
				return err
			}
			rt.ConnectAll()

			sink := newExprSink()
			sink.stop = make(chan struct{})

			prog, cerr := expression.Compile(args[0], rt.Manager, sink, false)
			if cerr != nil {
				rt.DisconnectAll()
				return fmt.Errorf("compiling expression: %w", cerr)
			}
			sink.mu.Lock()
			sink.prog = prog
			sink.mu.Unlock()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go rt.Loop.Run(ctx)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			select {
			case <-sigCh:
			case <-sink.stop:
			}

			for _, req := range prog.Requests {
				rt.Manager.RemoveRequest(req)
			}
			rt.DisconnectAll()
			cancel()
			return nil
		},
	}
	cmd.Flags().BoolVar(&flagQueryOnce, "once", false, "exit after the first evaluated batch")
	return cmd
}
