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
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleSourcesXML = `<sources>
  <source name="station1" kind="loggernet">
    <settings>
      <server-address>10.0.0.5</server-address>
      <server-port>6785</server-port>
      <user-name>admin</user-name>
      <use-https>true</use-https>
    </settings>
  </source>
  <source name="bmp5-1" kind="bmp5">
    <settings>
      <pakbus-address>4094</pakbus-address>
      <neighbour-address>1</neighbour-address>
      <security-code>0</security-code>
    </settings>
  </source>
</sources>`

func TestDecodeSourcePropertiesParsesAttributeTable(t *testing.T) {
	f, err := DecodeSourceProperties(strings.NewReader(sampleSourcesXML))
	require.NoError(t, err)
	require.Len(t, f.Sources, 2)

	first := f.Sources[0]
	require.Equal(t, "station1", first.Name)
	require.Equal(t, "loggernet", first.Kind)
	require.Equal(t, "10.0.0.5", *first.Settings.ServerAddress)
	require.Equal(t, 6785, *first.Settings.ServerPort)
	require.True(t, *first.Settings.UseHTTPS)

	second := f.Sources[1]
	require.Equal(t, "bmp5", second.Kind)
	require.Equal(t, 4094, *second.Settings.PakbusAddress)
}

func TestEncodeDecodeSourcePropertiesRoundTrip(t *testing.T) {
	addr := "logger.example.test"
	port := 80
	original := &SourcePropertiesFile{
		Sources: []SourceProperties{
			{
				Name: "station2", Kind: "httpsource",
				Settings: SourceSettings{ServerAddress: &addr, ServerPort: &port},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeSourceProperties(&buf, original))

	decoded, err := DecodeSourceProperties(&buf)
	require.NoError(t, err)
	require.Len(t, decoded.Sources, 1)
	require.Equal(t, "station2", decoded.Sources[0].Name)
	require.Equal(t, addr, *decoded.Sources[0].Settings.ServerAddress)
	require.Equal(t, port, *decoded.Sources[0].Settings.ServerPort)
}
