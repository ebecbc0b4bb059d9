package dbus

import (
	"strings"
)

// Child returns the object path of p's child named elem. elem must
// be a single path element.
func (p ObjectPath) Child(elem string) (ObjectPath, error) {
	if p.IsZero() {
		return ObjectPath{}, nameErr(kindObjectPath, nil, ErrEmptyName, "")
	}
	if elem == "" {
		return ObjectPath{}, nameErr(kindObjectPath, nil, ErrEmptyElement, "")
	}
	if strings.IndexByte(elem, '/') >= 0 {
		return ObjectPath{}, nameErr(kindObjectPath, []byte(elem), ErrInvalidChar, "path element contains '/'")
	}
	parent := p.String()
	if parent == "/" {
		return ParseObjectPath("/" + elem)
	}
	return ParseObjectPath(parent + "/" + elem)
}

// Parent returns the object path of p's parent. The parent of the
// root path is the root path.
func (p ObjectPath) Parent() ObjectPath {
	s := p.String()
	i := strings.LastIndexByte(s, '/')
	if i <= 0 {
		return ObjectPathUnchecked([]byte("/\x00"))
	}
	return ObjectPathUnchecked([]byte(s[:i] + "\x00"))
}

// IsChildOf reports whether p is a strict descendant of parent.
func (p ObjectPath) IsChildOf(parent ObjectPath) bool {
	ps, s := parent.String(), p.String()
	if p.IsZero() || parent.IsZero() || ps == s {
		return false
	}
	if ps == "/" {
		return true
	}
	return strings.HasPrefix(s, ps+"/")
}
