package resource

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Resource errors.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrExists        = errors.New("resource already exists")
	ErrNotAllowed    = errors.New("operation not allowed")
	ErrStatic        = errors.New("static resource")
	ErrInvalidPath   = errors.New("invalid resource path")
	ErrInvalidValue  = errors.New("invalid resource value")
	ErrNotExecutable = errors.New("resource not executable")
)

// Operations is a bit set of server operations allowed on a resource.
type Operations uint8

const (
	OpGet Operations = 1 << iota
	OpPut
	OpPost
	OpDelete

	OpNone                 Operations = 0
	OpGetAllowed                      = OpGet
	OpGetPutAllowed                   = OpGet | OpPut
	OpGetPutPostDelAllowed            = OpGet | OpPut | OpPost | OpDelete
)

// Has returns true if all operations in o2 are allowed.
func (o Operations) Has(o2 Operations) bool {
	return o&o2 == o2
}

// String returns a compact representation like "GPX-".
func (o Operations) String() string {
	var b strings.Builder
	for _, f := range []struct {
		op Operations
		c  byte
	}{{OpGet, 'G'}, {OpPut, 'P'}, {OpPost, 'X'}, {OpDelete, 'D'}} {
		if o.Has(f.op) {
			b.WriteByte(f.c)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Kind is the value type of a resource.
type Kind uint8

const (
	KindOpaque Kind = iota
	KindString
	KindInteger
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindOpaque:
		return "OPAQUE"
	case KindString:
		return "STRING"
	case KindInteger:
		return "INTEGER"
	default:
		return "UNKNOWN"
	}
}

// Validate checks that value is acceptable for kind.
func (k Kind) Validate(value []byte) error {
	if k == KindInteger {
		if _, err := strconv.ParseInt(string(value), 10, 64); err != nil {
			return fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, value)
		}
	}
	return nil
}

// ExecuteFunc runs when the server executes a resource.
type ExecuteFunc func(path Path, args []byte) error

// Definition describes a resource to add to a Registry.
type Definition struct {
	Path       Path
	Type       string
	Kind       Kind
	Dynamic    bool
	Operations Operations
	Value      []byte

	// BlockWise marks values that may be written and read in blocks.
	BlockWise bool

	Execute ExecuteFunc
}

// Path addresses a resource as object/instance/resource.
type Path struct {
	Object   string
	Instance uint16
	Resource string
}

// ParsePath parses "/Object/Instance/Resource". The leading slash is
// optional.
func ParsePath(s string) (Path, error) {
	parts := strings.Split(strings.TrimPrefix(s, "/"), "/")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, s)
	}
	inst, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return Path{}, fmt.Errorf("%w: %q: bad instance", ErrInvalidPath, s)
	}
	return Path{Object: parts[0], Instance: uint16(inst), Resource: parts[2]}, nil
}

// MustParsePath is like ParsePath but panics on error.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns "/Object/Instance/Resource".
func (p Path) String() string {
	return fmt.Sprintf("/%s/%d/%s", p.Object, p.Instance, p.Resource)
}

// InstancePath returns "Object/Instance" as announced at registration.
func (p Path) InstancePath() string {
	return fmt.Sprintf("%s/%d", p.Object, p.Instance)
}
