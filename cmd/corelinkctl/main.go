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

// Command corelinkctl is a cobra-based CLI consumer of the Data Source
// Manager (spec section 7's "CLI or UI consumer"): it loads the same
// runtimecfg.Config and persisted source properties a corelink daemon
// would, builds the sources it names, and exposes connect, browse, query
// and terminal operations against them from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagSources string
)

func main() {
	root := &cobra.Command{
		Use:   "corelinkctl",
		Short: "Inspect and exercise a corelink Data Source Manager",
		Long: "corelinkctl builds a Data Source Manager from a runtime config file and a\n" +
			"persisted source-properties file, the same inputs a corelink daemon loads,\n" +
			"and drives it from the command line for development and diagnostics.",
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "runtime config file (yaml/toml/json); defaults if omitted")
	root.PersistentFlags().StringVarP(&flagSources, "sources", "s", "", "persisted source properties XML file")

	root.AddCommand(newConnectCmd())
	root.AddCommand(newBrowseCmd())
	root.AddCommand(newQueryCmd())
	root.AddCommand(newTerminalCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
