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

// Package symbol implements the hierarchical, lazily-expanded browse tree
// of section 4.L: one Browser wraps a datasource.Manager and turns its
// source connect/disconnect events into a tree of station/table/column
// Symbols, materialised on demand rather than up front.
package symbol

import (
	"sync"

	"github.com/lnetcore/corelink/datasource"
)

// Kind mirrors datasource.SymbolKind for the nodes a Browser materialises,
// plus the root "source" kind a Browser seeds itself with.
type Kind = datasource.SymbolKind

// Symbol is one node of the browse tree, per section 3's Symbol data
// model: name, kind, enabled/read-only flags, parent pointer, and lazily
// populated children.
type Symbol struct {
	Name     string
	Kind     Kind
	Enabled  bool
	ReadOnly bool
	Parent   *Symbol

	mu        sync.Mutex
	children  []*Symbol
	expanding bool
	expanded  bool
}

// CanExpand reports whether this symbol is a container kind that has not
// yet been populated, per section 3: "can_expand ∧ empty ⇒
// start_expansion()".
func (s *Symbol) CanExpand() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.expanded && s.Kind != datasource.SymScalar && s.Kind != datasource.SymSubscript
}

// Children returns a snapshot of the current children slice.
func (s *Symbol) Children() []*Symbol {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Symbol, len(s.children))
	copy(out, s.children)
	return out
}

// URI reconstructs the dotted URI this symbol names by walking parent
// pointers back to the root source.
func (s *Symbol) URI() string {
	var station, table, column string
	switch s.Kind {
	case datasource.SymStation:
		station = s.Name
	case datasource.SymTable:
		table = s.Name
		if s.Parent != nil {
			station = s.Parent.Name
		}
	case datasource.SymScalar, datasource.SymArray:
		column = s.Name
		if s.Parent != nil {
			table = s.Parent.Name
			if s.Parent.Parent != nil {
				station = s.Parent.Parent.Name
			}
		}
	}
	source := s.Name
	for p := s.Parent; p != nil; p = p.Parent {
		if p.Kind == datasource.SymSource {
			source = p.Name
		}
	}
	if s.Kind == datasource.SymSource {
		return source + ":"
	}
	return datasource.JoinURI(source, station, table, column)
}

// Listener receives tree-shape and connectivity events as a Browser
// discovers them, per section 4.L.
type Listener interface {
	OnSymbolAdded(parent, sym *Symbol)
	OnSymbolRemoved(parent, sym *Symbol)
	OnSymbolEnabled(sym *Symbol, enabled bool)
	OnSourceConnectChange(sourceName string, connected bool)
}

// Expander is implemented by anything that can service a Symbol's lazy
// expansion by issuing whatever enumeration traffic its kind requires
// (station/table listing, column listing). Concrete datasource.Source
// implementations that support browsing register one of these per source
// name; sources that don't support browsing simply never get asked.
type Expander interface {
	StartExpansion(sym *Symbol, onChildren func(names []Symbol))
}

// Browser wraps a datasource.Manager, turning its ManagerClient events
// into the tree of section 4.L. It is itself a datasource.ManagerClient.
type Browser struct {
	manager *datasource.Manager

	mu        sync.Mutex
	roots     map[string]*Symbol // source name -> root Symbol
	expanders map[string]Expander
	listeners []Listener
}

// NewBrowser builds a Browser over manager, registering itself as a
// ManagerClient to learn of source connect/disconnect.
func NewBrowser(manager *datasource.Manager) *Browser {
	b := &Browser{
		manager:   manager,
		roots:     make(map[string]*Symbol),
		expanders: make(map[string]Expander),
	}
	manager.AddClient(b)
	return b
}

// AddListener registers a Listener for add/remove/enable/connect events.
func (b *Browser) AddListener(l Listener) {
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()
}

// RegisterExpander associates sourceName's lazy-expansion traffic with
// expander, used whenever a Symbol under that source's root needs
// StartExpansion called.
func (b *Browser) RegisterExpander(sourceName string, expander Expander) {
	b.mu.Lock()
	b.expanders[sourceName] = expander
	b.mu.Unlock()
}

// Root returns (creating if necessary) the root Symbol for sourceName.
func (b *Browser) Root(sourceName string) *Symbol {
	b.mu.Lock()
	defer b.mu.Unlock()
	root, ok := b.roots[sourceName]
	if !ok {
		root = &Symbol{Name: sourceName, Kind: datasource.SymSource, Enabled: true}
		b.roots[sourceName] = root
	}
	return root
}

// Expand triggers lazy expansion of sym if it can_expand and is currently
// empty, per section 4.L/3's expansion rule. A no-op if no Expander is
// registered for sym's source or sym is already expanded.
func (b *Browser) Expand(sym *Symbol) {
	if !sym.CanExpand() {
		return
	}
	sourceName := sym.Name
	for p := sym; p != nil; p = p.Parent {
		if p.Kind == datasource.SymSource {
			sourceName = p.Name
			break
		}
	}
	b.mu.Lock()
	expander, ok := b.expanders[sourceName]
	b.mu.Unlock()
	if !ok {
		return
	}
	sym.mu.Lock()
	alreadyExpanding := sym.expanding
	sym.expanding = true
	sym.mu.Unlock()
	if alreadyExpanding {
		return
	}
	expander.StartExpansion(sym, func(names []Symbol) {
		b.addChildren(sym, names)
	})
}

func (b *Browser) addChildren(parent *Symbol, names []Symbol) {
	parent.mu.Lock()
	parent.expanded = true
	parent.expanding = false
	for i := range names {
		child := names[i]
		child.Parent = parent
		parent.children = append(parent.children, &child)
	}
	added := parent.children[len(parent.children)-len(names):]
	parent.mu.Unlock()

	for _, l := range b.snapshotListeners() {
		for _, child := range added {
			l.OnSymbolAdded(parent, child)
		}
	}
}

// RemoveChild deletes sym from parent's children and notifies listeners;
// per section 4.L, a symbol whose source disconnects is not itself
// removed — this is used only for explicit enumeration removals (a table
// dropped from a logger's table definitions, for example).
func (b *Browser) RemoveChild(parent, sym *Symbol) {
	parent.mu.Lock()
	for i, c := range parent.children {
		if c == sym {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
	parent.mu.Unlock()

	for _, l := range b.snapshotListeners() {
		l.OnSymbolRemoved(parent, sym)
	}
}

// SetEnabled toggles sym.Enabled and notifies listeners.
func (b *Browser) SetEnabled(sym *Symbol, enabled bool) {
	sym.mu.Lock()
	changed := sym.Enabled != enabled
	sym.Enabled = enabled
	sym.mu.Unlock()
	if !changed {
		return
	}
	for _, l := range b.snapshotListeners() {
		l.OnSymbolEnabled(sym, enabled)
	}
}

func (b *Browser) snapshotListeners() []Listener {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Listener, len(b.listeners))
	copy(out, b.listeners)
	return out
}

// OnSourceConnecting implements datasource.ManagerClient; the browse tree
// itself has no "connecting" visual state distinct from disconnected.
func (b *Browser) OnSourceConnecting(source string) {}

// OnSourceConnect implements datasource.ManagerClient: on reconnect, a
// root symbol's existing children are kept as they are rather than
// discarded, per section 4.L. A symbol that was already expanded is not
// expanded again, so its children are not re-read.
func (b *Browser) OnSourceConnect(source string) {
	b.Root(source)
	for _, l := range b.snapshotListeners() {
		l.OnSourceConnectChange(source, true)
	}
}

// OnSourceDisconnect implements datasource.ManagerClient: per section
// 4.L, the symbol is not removed on disconnect. Listeners are told through
// OnSourceConnectChange; no state on the symbol itself changes.
func (b *Browser) OnSourceDisconnect(source string, reason datasource.DisconnectReason) {
	for _, l := range b.snapshotListeners() {
		l.OnSourceConnectChange(source, false)
	}
}
