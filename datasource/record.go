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

import "time"

// ValueType is the database type code a Value carries, per section 3.
type ValueType uint8

const (
	ValUnknown ValueType = iota
	ValBool
	ValInt64
	ValFloat64
	ValString
)

// Value is one typed record slot.
type Value struct {
	Type   ValueType
	Bool   bool
	Int    int64
	Float  float64
	String string
}

// AsFloat returns the value coerced to float64, for expression evaluation and
// comparisons regardless of its native type.
func (v Value) AsFloat() float64 {
	switch v.Type {
	case ValBool:
		if v.Bool {
			return 1
		}
		return 0
	case ValInt64:
		return float64(v.Int)
	case ValFloat64:
		return v.Float
	default:
		return 0
	}
}

// ValueDescriptor names and types one column of a record, per section 3's
// "Symbol"/"Record" data model.
type ValueDescriptor struct {
	Name string
	Type ValueType
}

// Description is a record's schema: station, table, and ordered value
// descriptors.
type Description struct {
	Station string
	Table   string
	Values  []ValueDescriptor
}

// Record is one row of data: a Description, a timestamp, a file mark and
// record number, and typed value slots aligned with Description.Values.
type Record struct {
	Desc     *Description
	Time     time.Time
	FileMark int64
	RecordNo int64
	Slots    []Value
}

// Value looks up a slot by descriptor name; ok is false if no such column
// exists in this record's Description.
func (r *Record) Value(name string) (Value, bool) {
	for i, d := range r.Desc.Values {
		if d.Name == name {
			return r.Slots[i], true
		}
	}
	return Value{}, false
}
