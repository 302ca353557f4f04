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

package datasource

import (
	"strconv"
	"strings"
)

// SymbolKind classifies one segment of a broken-down URI, per section 3's
// Symbol data model.
type SymbolKind uint8

const (
	SymSource SymbolKind = iota
	SymStation
	SymTable
	SymScalar
	SymArray
	SymSubscript
)

// Segment is one (name, kind) pair of a broken-down URI.
type Segment struct {
	Name       string
	Kind       SymbolKind
	Subscripts []int
}

// BreakdownURI is a total function decomposing "source:station.table.column"
// (with optional "[i,j,...]" array subscripts on the column) into an ordered
// Segment vector, per section 3/6. Invalid URIs return an empty slice rather
// than an error, matching the "total function" contract of section 4.K's
// breakdown_uri.
func BreakdownURI(uri string) []Segment {
	colon := strings.IndexByte(uri, ':')
	if colon < 0 {
		return nil
	}
	sourceName := uri[:colon]
	rest := uri[colon+1:]
	if sourceName == "" || rest == "" {
		return nil
	}

	parts := strings.SplitN(rest, ".", 3)
	segs := []Segment{{Name: sourceName, Kind: SymSource}}
	if len(parts) >= 1 && parts[0] != "" {
		segs = append(segs, Segment{Name: parts[0], Kind: SymStation})
	}
	if len(parts) >= 2 && parts[1] != "" {
		segs = append(segs, Segment{Name: parts[1], Kind: SymTable})
	}
	if len(parts) >= 3 && parts[2] != "" {
		segs = append(segs, columnSegment(parts[2]))
	}
	return segs
}

func columnSegment(col string) Segment {
	open := strings.IndexByte(col, '[')
	if open < 0 {
		return Segment{Name: col, Kind: SymScalar}
	}
	if !strings.HasSuffix(col, "]") {
		return Segment{Name: col, Kind: SymScalar}
	}
	name := col[:open]
	inner := col[open+1 : len(col)-1]
	var subs []int
	for _, tok := range strings.Split(inner, ",") {
		tok = strings.TrimSpace(tok)
		n, err := strconv.Atoi(tok)
		if err != nil {
			return Segment{Name: col, Kind: SymScalar}
		}
		subs = append(subs, n)
	}
	return Segment{Name: name, Kind: SymArray, Subscripts: subs}
}

// JoinURI is the inverse of BreakdownURI for the (source, station, table)
// prefix, used by sources constructing synthetic or symbol-derived URIs.
func JoinURI(source, station, table, column string) string {
	var sb strings.Builder
	sb.WriteString(source)
	sb.WriteByte(':')
	sb.WriteString(station)
	if table != "" {
		sb.WriteByte('.')
		sb.WriteString(table)
	}
	if column != "" {
		sb.WriteByte('.')
		sb.WriteString(column)
	}
	return sb.String()
}
