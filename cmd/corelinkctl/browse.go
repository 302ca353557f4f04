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
	"strings"

	"github.com/spf13/cobra"

	"github.com/lnetcore/corelink/datasource"
)

// segmentKindName renders a datasource.SymbolKind the way a human browsing
// the tree of section 4.L would expect to see it labelled.
func segmentKindName(k datasource.SymbolKind) string {
	switch k {
	case datasource.SymSource:
		return "source"
	case datasource.SymStation:
		return "station"
	case datasource.SymTable:
		return "table"
	case datasource.SymScalar:
		return "scalar"
	case datasource.SymArray:
		return "array"
	case datasource.SymSubscript:
		return "subscript"
	default:
		return "unknown"
	}
}

// newBrowseCmd implements section 4.K's breakdown_uri as a standalone
// inspection command: called with no argument it lists the sources this
// Runtime built; called with a URI it breaks it down into its ordered
// Segment vector per section 3, the same total function a Symbol Browser's
// lazy expansion would anchor on.
func newBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse [uri]",
		Short: "List configured sources, or break a URI down into its symbol segments",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(flagConfig, flagSources)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				if len(rt.Sources) == 0 {
					fmt.Println("no sources configured")
					return nil
				}
				for _, src := range rt.Sources {
					fmt.Println(src.Name())
				}
				return nil
			}

			uri := args[0]
			segs := rt.Manager.BreakdownURI(uri)
			if len(segs) == 0 {
				return fmt.Errorf("%q does not break down into any symbols", uri)
			}
			for _, seg := range segs {
				line := fmt.Sprintf("%-10s %s", segmentKindName(seg.Kind), seg.Name)
				if len(seg.Subscripts) > 0 {
					subs := make([]string, len(seg.Subscripts))
					for i, n := range seg.Subscripts {
						subs[i] = fmt.Sprintf("%d", n)
					}
					line += "[" + strings.Join(subs, ",") + "]"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}
