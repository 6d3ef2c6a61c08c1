package module

import (
	"sort"

	"github.com/fimoengine/emf-core-base-go/version"
)

const (
	maxNameLen      = 32
	maxExtensionLen = 32
)

// InterfaceDescriptor names a versioned capability a module exports.
type InterfaceDescriptor struct {
	Name       string
	Version    version.Version
	Extensions []string
}

// Equal reports descriptor equality: exact name match, strong-comparison
// version match, and extension sequences equal as multisets.
func (d InterfaceDescriptor) Equal(o InterfaceDescriptor) bool {
	return d.Name == o.Name &&
		version.CompareStrong(d.Version, o.Version) == 0 &&
		sameMultiset(d.Extensions, o.Extensions)
}

// CompatibleWith reports whether d (as exported) satisfies required: names
// and extension multisets match, and d's version is compatible with
// required's under version.Compatible.
func (d InterfaceDescriptor) CompatibleWith(required InterfaceDescriptor) bool {
	return d.Name == required.Name &&
		sameMultiset(d.Extensions, required.Extensions) &&
		version.Compatible(d.Version, required.Version)
}

func sameMultiset(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// canonicalKey is a fast lookup key used only as a cache
// hint; actual equality/compatibility always goes through Equal/
// CompatibleWith, never string comparison of this key alone, since two
// descriptors with differently-ordered extensions are equal but would
// produce different naive concatenations. It sorts extensions first so
// that hint collisions are rare without claiming to be authoritative.
func (d InterfaceDescriptor) canonicalKey() string {
	ext := append([]string(nil), d.Extensions...)
	sort.Strings(ext)
	key := d.Name + "@" + d.Version.String()
	for _, e := range ext {
		key += "/" + e
	}
	return key
}
