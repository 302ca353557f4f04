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
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lnetcore/corelink/datasource"
)

// printingClient is a datasource.ManagerClient that logs connect lifecycle
// events to stdout, standing in for the "CLI consumer" of spec.md section
// 7.
type printingClient struct{}

func (printingClient) OnSourceConnecting(source string) {
	fmt.Printf("connecting: %s\n", source)
}

func (printingClient) OnSourceConnect(source string) {
	fmt.Printf("connected:  %s\n", source)
}

func (printingClient) OnSourceDisconnect(source string, reason datasource.DisconnectReason) {
	fmt.Printf("disconnected: %s (reason %d)\n", source, reason)
}

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Build every configured source and keep them connected until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(flagConfig, flagSources)
			if err != nil {
				return err
			}
			rt.Manager.AddClient(printingClient{})

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go rt.Loop.Run(ctx)

			rt.ConnectAll()
			fmt.Printf("%d source(s) connected; press Ctrl-C to stop\n", len(rt.Sources))

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			<-sigCh

			rt.DisconnectAll()
			cancel()
			return nil
		},
	}
}
