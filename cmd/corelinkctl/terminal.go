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
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lnetcore/corelink/datasource"
)

// stdioTerminalSink relays a source's bidirectional terminal stream (section
// 4.K's start_terminal/send_terminal/close_terminal) onto this process's
// stdout, keyed by the single token this command opens.
type stdioTerminalSink struct {
	token int64
	done  chan struct{}
}

func (s *stdioTerminalSink) OnTerminalData(token int64, data []byte) {
	if token != s.token {
		return
	}
	os.Stdout.Write(data)
}

func (s *stdioTerminalSink) OnTerminalClosed(token int64) {
	if token != s.token {
		return
	}
	fmt.Fprintln(os.Stderr, "\nterminal closed")
	close(s.done)
}

func newTerminalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "terminal <uri>",
		Short: "Open a bidirectional terminal stream against a source and relay stdin/stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(flagConfig, flagSources)
			if err != nil {
				return err
			}
			rt.ConnectAll()

			uri := args[0]
			sink := &stdioTerminalSink{token: 1, done: make(chan struct{})}
			if !rt.Manager.StartTerminal(uri, sink, sink.token) {
				rt.DisconnectAll()
				return fmt.Errorf("source for %q does not support a terminal stream", uri)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go rt.Loop.Run(ctx)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			lines := make(chan string)
			go func() {
				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					lines <- scanner.Text()
				}
				close(lines)
			}()

			fmt.Fprintln(os.Stderr, "terminal open; type a line and press Enter to send, Ctrl-C to close")
		loop:
			for {
				select {
				case <-sigCh:
					break loop
				case <-sink.done:
					break loop
				case line, ok := <-lines:
					if !ok {
						break loop
					}
					rt.Manager.SendTerminal(uri, sink.token, append([]byte(line), '\n'))
				}
			}

			rt.Manager.CloseTerminal(uri, sink.token)
			rt.DisconnectAll()
			cancel()
			return nil
		},
	}
}
