package module

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/fimoengine/emf-core-base-go/rterror"
)

// exportedEntry pairs a descriptor with the module that exports it.
type exportedEntry struct {
	desc   InterfaceDescriptor
	module ModuleHandle
}

// exportTable is the runtime's single source of truth for exported
// interfaces: a flat slice scanned for compatibility matches (typically a
// handful of entries; linear scan is simple and correct), fronted by an
// LRU cache keyed on a descriptor's canonical hint for the hot exact-match
// paths (DuplicateInterface checks and ExportedInterfaceExists, both via
// existsExact; handleFor always scans). The cache only ever short-circuits a
// positive hit that is re-verified against the authoritative slice; a miss
// or stale hit always falls through to the full scan, so eviction can
// never produce an incorrect answer.
type exportTable struct {
	entries []exportedEntry
	cache   *lru.Cache
}

func newExportTable() *exportTable {
	cache, _ := lru.New(256)
	return &exportTable{cache: cache}
}

// export records desc as exported by m, failing with DuplicateInterface if
// an equal descriptor is already present.
func (t *exportTable) export(desc InterfaceDescriptor, m ModuleHandle) error {
	if t.existsExact(desc) {
		return rterror.Newf(KindDuplicateInterface, "interface %q is already exported", desc.Name)
	}
	t.entries = append(t.entries, exportedEntry{desc: desc, module: m})
	t.cache.Add(desc.canonicalKey(), m)
	return nil
}

func (t *exportTable) existsExact(desc InterfaceDescriptor) bool {
	if cached, ok := t.cache.Get(desc.canonicalKey()); ok {
		if t.hasExactEntry(desc, cached.(ModuleHandle)) {
			return true
		}
		t.cache.Remove(desc.canonicalKey())
	}
	for _, e := range t.entries {
		if e.desc.Equal(desc) {
			t.cache.Add(desc.canonicalKey(), e.module)
			return true
		}
	}
	return false
}

func (t *exportTable) hasExactEntry(desc InterfaceDescriptor, m ModuleHandle) bool {
	for _, e := range t.entries {
		if e.module == m && e.desc.Equal(desc) {
			return true
		}
	}
	return false
}

// handleFor returns the module exporting an exact match for desc.
func (t *exportTable) handleFor(desc InterfaceDescriptor) (ModuleHandle, bool) {
	for _, e := range t.entries {
		if e.desc.Equal(desc) {
			return e.module, true
		}
	}
	return 0, false
}

// findCompatible returns the module exporting an interface compatible
// with required (per InterfaceDescriptor.CompatibleWith), used by
// dependency checks during load/initialize.
func (t *exportTable) findCompatible(required InterfaceDescriptor) (ModuleHandle, bool) {
	for _, e := range t.entries {
		if e.desc.CompatibleWith(required) {
			return e.module, true
		}
	}
	return 0, false
}

// removeAllFrom drops every entry exported by m, returning their
// descriptors (used by terminate's cascade to know what dependents to
// chase).
func (t *exportTable) removeAllFrom(m ModuleHandle) []InterfaceDescriptor {
	var removed []InterfaceDescriptor
	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.module == m {
			removed = append(removed, e.desc)
			t.cache.Remove(e.desc.canonicalKey())
		} else {
			kept = append(kept, e)
		}
	}
	t.entries = kept
	return removed
}

func (t *exportTable) count() int { return len(t.entries) }

func (t *exportTable) each(fn func(exportedEntry) bool) {
	for _, e := range t.entries {
		if !fn(e) {
			return
		}
	}
}
