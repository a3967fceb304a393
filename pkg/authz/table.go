// Package authz is the authorization decision point. A static table
// describes which scope each method on each resource requires, and the
// checker evaluates a session's current grant against it on every
// request.
package authz

import (
	"errors"
	"fmt"
	"sort"

	"github.com/coap-ace/acegatt/pkg/coap"
	"github.com/coap-ace/acegatt/pkg/session"
)

var (
	ErrEmptyPath      = errors.New("authz: descriptor has empty path")
	ErrDuplicatePath  = errors.New("authz: duplicate descriptor path")
	ErrNoMethods      = errors.New("authz: descriptor has no methods")
	ErrNotRequestCode = errors.New("authz: method is not a request code")
)

// Descriptor describes one protected resource: the scope each method
// requires, plus the metadata advertised in resource discovery.
type Descriptor struct {
	// Path is the resource path, without a leading slash.
	Path string

	// Methods maps each allowed request method to the scope it
	// requires. ScopeNone marks a method open to unauthorized peers.
	Methods map[coap.Code]session.Scope

	// ResourceType is the rt= attribute for discovery, if any.
	ResourceType string

	// ContentFormat is the ct= attribute for discovery
	// (coap.ContentFormatNone to omit).
	ContentFormat uint16
}

// Table is an immutable set of resource descriptors keyed by path.
type Table struct {
	byPath map[string]*Descriptor
	paths  []string
}

// NewTable validates and indexes a descriptor set.
func NewTable(descriptors []Descriptor) (*Table, error) {
	t := &Table{byPath: make(map[string]*Descriptor, len(descriptors))}

	for i := range descriptors {
		d := descriptors[i]
		if d.Path == "" {
			return nil, ErrEmptyPath
		}
		if _, dup := t.byPath[d.Path]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePath, d.Path)
		}
		if len(d.Methods) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrNoMethods, d.Path)
		}
		for code := range d.Methods {
			if !code.IsRequest() {
				return nil, fmt.Errorf("%w: %q method %v", ErrNotRequestCode, d.Path, code)
			}
		}

		// Copy the method map so callers cannot mutate the table.
		methods := make(map[coap.Code]session.Scope, len(d.Methods))
		for code, scope := range d.Methods {
			methods[code] = scope
		}
		d.Methods = methods

		t.byPath[d.Path] = &d
		t.paths = append(t.paths, d.Path)
	}

	sort.Strings(t.paths)
	return t, nil
}

// Lookup returns the descriptor for a path.
func (t *Table) Lookup(path string) (*Descriptor, bool) {
	d, ok := t.byPath[path]
	return d, ok
}

// Paths returns all descriptor paths in sorted order.
func (t *Table) Paths() []string {
	return append([]string(nil), t.paths...)
}
