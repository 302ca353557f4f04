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

package runtimecfg

import (
	"encoding/xml"
	"io"

	"github.com/lnetcore/corelink/errs"
)

// SourceSettings is the nested <settings> element of one persisted source,
// carrying the attribute set section 6's table names. Every field is a
// pointer so an absent attribute round-trips as absent rather than as a
// zero value indistinguishable from an explicit one.
type SourceSettings struct {
	ServerAddress *string `xml:"server-address,omitempty"`
	ServerPort    *int    `xml:"server-port,omitempty"`
	UserName      *string `xml:"user-name,omitempty"`
	Password      *string `xml:"password,omitempty"`
	UseHTTPS      *bool   `xml:"use-https,omitempty"`

	PollScheduleBase     *string `xml:"poll-schedule-base,omitempty"`
	PollScheduleInterval *string `xml:"poll-schedule-interval,omitempty"`

	FileName *string `xml:"file-name,omitempty"`

	RefreshInterval *string `xml:"refresh-interval,omitempty"`
	RefreshBase     *string `xml:"refresh-base,omitempty"`

	PakbusAddress       *int    `xml:"pakbus-address,omitempty"`
	NeighbourAddress    *int    `xml:"neighbour-address,omitempty"`
	SecurityCode        *int    `xml:"security-code,omitempty"`
	PakbusEncryptionKey *string `xml:"pakbus-encryption-key,omitempty"`

	// Station, Table, Path and DropDir name the single station.table this
	// source exposes and, for the file-oriented kinds, where its payload
	// lives, per cmd/corelinkctl's source factory.
	Station *string `xml:"station,omitempty"`
	Table   *string `xml:"table,omitempty"`
	Path    *string `xml:"path,omitempty"`
	DropDir *string `xml:"drop-dir,omitempty"`
}

// SourceProperties is one persisted <source> element: a name, a kind
// (loggernet/httpsource/bmp5/datafile/ftpfile/database/virtual, matching the
// package names under datasource/sources), and its nested settings.
type SourceProperties struct {
	XMLName  xml.Name       `xml:"source"`
	Name     string         `xml:"name,attr"`
	Kind     string         `xml:"kind,attr"`
	Settings SourceSettings `xml:"settings"`
}

// SourcePropertiesFile is the root element wrapping every persisted
// source, one file per application instance.
type SourcePropertiesFile struct {
	XMLName xml.Name           `xml:"sources"`
	Sources []SourceProperties `xml:"source"`
}

// DecodeSourceProperties parses r as a SourcePropertiesFile.
func DecodeSourceProperties(r io.Reader) (*SourcePropertiesFile, errs.Error) {
	var f SourcePropertiesFile
	if err := xml.NewDecoder(r).Decode(&f); err != nil {
		return nil, errs.New(errs.ClassParse, 0, "runtimecfg: malformed source properties xml", err)
	}
	return &f, nil
}

// EncodeSourceProperties renders f back to XML, indented, for a
// "save configuration" operation.
func EncodeSourceProperties(w io.Writer, f *SourcePropertiesFile) errs.Error {
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(f); err != nil {
		return errs.New(errs.ClassResource, 0, "runtimecfg: encoding source properties failed", err)
	}
	return nil
}
