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

// Package errs classifies failures the way the rest of the runtime needs to
// propagate them: every error carries a Class (matching the taxonomy in
// section 7 of the design spec: parse, protocol, transport, policy,
// resource, clock-regression) and an optional numeric Code for the finer
// grained outcome values used by set/get/file operations.
package errs

import (
	"errors"
	"fmt"
)

// Class groups failures by how they must propagate, per the error handling
// design: a Parse failure is caller-local, a Transport failure breaks every
// session on the connection, and so on.
type Class uint8

const (
	ClassUnknown Class = iota
	ClassParse
	ClassProtocol
	ClassTransport
	ClassPolicy
	ClassResource
	ClassClockRegression
)

func (c Class) String() string {
	switch c {
	case ClassParse:
		return "parse"
	case ClassProtocol:
		return "protocol"
	case ClassTransport:
		return "transport"
	case ClassPolicy:
		return "policy"
	case ClassResource:
		return "resource"
	case ClassClockRegression:
		return "clock-regression"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every public operation in corelink.
// It carries a Class for propagation decisions and a Code for outcomes that
// must be reported verbatim to a sink (set-value outcomes, file-control
// outcomes, proxy logon outcomes).
type Error interface {
	error
	Class() Class
	Code() uint16
	Unwrap() error
}

type baseErr struct {
	class  Class
	code   uint16
	msg    string
	parent error
}

func (e *baseErr) Error() string {
	if e.parent != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.parent)
	}
	return e.msg
}

func (e *baseErr) Class() Class   { return e.class }
func (e *baseErr) Code() uint16   { return e.code }
func (e *baseErr) Unwrap() error  { return e.parent }

// New builds an Error of the given class carrying msg and an optional parent.
func New(class Class, code uint16, msg string, parent error) Error {
	return &baseErr{class: class, code: code, msg: msg, parent: parent}
}

// Newf is New with a formatted message.
func Newf(class Class, code uint16, parent error, format string, args ...interface{}) Error {
	return &baseErr{class: class, code: code, msg: fmt.Sprintf(format, args...), parent: parent}
}

// Is reports whether err is an Error of the given class, unwrapping through
// the parent chain the way errors.Is unwraps standard error chains.
func Is(err error, class Class) bool {
	var e Error
	for err != nil {
		if errors.As(err, &e) {
			if e.Class() == class {
				return true
			}
			err = e.Unwrap()
			continue
		}
		return false
	}
	return false
}

// CodeOf returns the Code of err if it is an Error, or 0 otherwise.
func CodeOf(err error) uint16 {
	var e Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return 0
}
