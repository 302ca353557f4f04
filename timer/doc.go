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

// Package timer implements the single-threaded cooperative timer wheel and
// periodic Scheduler that every other component in corelink is driven from.
//
// Everything in corelink that needs to wake up later — a transmit watchdog,
// a PakBus ring timeout, an HTTP response timeout, a scheduled poll — goes
// through a Loop. A Loop owns one goroutine; timers are armed, disarmed and
// fired on that goroutine only, so components built on top of it need no
// locking of their own. Readers that must block on I/O (socket reads, serial
// port reads) run on their own goroutines and hand decoded events back to
// the Loop over a channel (see Loop.Post), which is the only safe way to
// reach across into Loop-owned state.
package timer
