// Package version implements the runtime's version algebra: a six-field
// version record, its string grammar, three comparison strengths, and the
// directional compatibility predicate used to negotiate interface versions.
//
// The numeric major.minor.patch core is ordered by delegating to
// github.com/Masterminds/semver/v3, the way cue-lang-cue's internal semver
// helper wraps a third-party comparator instead of hand-rolling integer
// tuples; the release-type/release-number/build extensions layered on top
// of semver are implemented in plain Go below.
package version

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/Masterminds/semver/v3"

	"github.com/fimoengine/emf-core-base-go/rterror"
)

// ReleaseType distinguishes a version's maturity. The zero value is Stable
// so a zero-valued Version is always well-formed.
type ReleaseType int8

const (
	Stable ReleaseType = iota
	Unstable
	Beta
)

// rank orders release types for strong comparison purposes: Unstable <
// Beta < Stable. This is independent of the ReleaseType constant values
// above, which only need to be stable ABI tags.
func (t ReleaseType) rank() int {
	switch t {
	case Unstable:
		return 0
	case Beta:
		return 1
	case Stable:
		return 2
	default:
		return -1
	}
}

// tag is the string written into the version's RELEASE_TAG grammar slot.
// Stable has no tag: its suffix is omitted entirely.
func (t ReleaseType) tag() string {
	switch t {
	case Unstable:
		return "unstable"
	case Beta:
		return "beta"
	default:
		return ""
	}
}

func (t ReleaseType) String() string {
	switch t {
	case Stable:
		return "stable"
	default:
		return t.tag()
	}
}

const (
	KindInvalidString   rterror.Kind = "version.InvalidString"
	KindBufferOverflow  rterror.Kind = "version.BufferOverflow"
)

// ErrInvalidString and ErrBufferOverflow are sentinels usable with errors.Is.
var (
	ErrInvalidString  = rterror.New(KindInvalidString, "version string does not match the expected grammar")
	ErrBufferOverflow = rterror.New(KindBufferOverflow, "buffer too small for the printed version")
)

// Version is an immutable value type: (major, minor, patch, build,
// releaseNumber, releaseType).
type Version struct {
	Major         int32
	Minor         int32
	Patch         int32
	Build         int64
	ReleaseNumber int8
	ReleaseType   ReleaseType
}

// NewShort builds a Stable version with no release number or build.
func NewShort(major, minor, patch int32) Version {
	return Version{Major: major, Minor: minor, Patch: patch}
}

// NewLong builds a version with an explicit release type/number. A Stable
// release type with a nonzero release number is normalized to zero, to
// preserve the invariant that release_type = Stable implies
// release_number = 0.
func NewLong(major, minor, patch int32, releaseType ReleaseType, releaseNumber int8) Version {
	if releaseType == Stable {
		releaseNumber = 0
	}
	return Version{Major: major, Minor: minor, Patch: patch, ReleaseType: releaseType, ReleaseNumber: releaseNumber}
}

// NewFull is NewLong plus an explicit build number.
func NewFull(major, minor, patch int32, releaseType ReleaseType, releaseNumber int8, build int64) Version {
	v := NewLong(major, minor, patch, releaseType, releaseNumber)
	v.Build = build
	return v
}

// semverCore returns the Masterminds/semver representation of just the
// major.minor.patch core, used to delegate that portion of every
// comparison.
func (v Version) semverCore() *semver.Version {
	// semver.NewVersion never fails for well-formed non-negative integer input.
	sv, _ := semver.NewVersion(fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch))
	return sv
}

var versionRe = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)(?:-(unstable|beta)\.(\d+))?(?:\+(\d+))?$`)

// FromString parses the MAJOR.MINOR.PATCH[-RELEASE_TAG.RELEASE_NUMBER][+BUILD]
// grammar, failing with ErrInvalidString on any deviation (including the
// Stable tag ever being spelled out explicitly -- it is implicit and
// never written).
func FromString(s string) (Version, error) {
	m := versionRe.FindStringSubmatch(s)
	if m == nil {
		return Version{}, rterror.Wrap(KindInvalidString, fmt.Sprintf("invalid version string %q", s), ErrInvalidString)
	}

	major, err := parseInt32(m[1])
	if err != nil {
		return Version{}, invalidString(s, err)
	}
	minor, err := parseInt32(m[2])
	if err != nil {
		return Version{}, invalidString(s, err)
	}
	patch, err := parseInt32(m[3])
	if err != nil {
		return Version{}, invalidString(s, err)
	}

	releaseType := Stable
	var releaseNumber int8
	if m[4] != "" {
		switch m[4] {
		case "unstable":
			releaseType = Unstable
		case "beta":
			releaseType = Beta
		}
		n, err := strconv.ParseInt(m[5], 10, 8)
		if err != nil {
			return Version{}, invalidString(s, err)
		}
		releaseNumber = int8(n)
	}

	var build int64
	if m[6] != "" {
		build, err = strconv.ParseInt(m[6], 10, 64)
		if err != nil {
			return Version{}, invalidString(s, err)
		}
	}

	return NewFull(major, minor, patch, releaseType, releaseNumber, build), nil
}

func invalidString(s string, cause error) error {
	return rterror.Wrap(KindInvalidString, fmt.Sprintf("invalid version string %q", s), cause)
}

func parseInt32(s string) (int32, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	return int32(n), err
}

// StringIsValid is the predicate form of FromString.
func StringIsValid(s string) bool {
	_, err := FromString(s)
	return err == nil
}

// AsShort writes "MAJOR.MINOR.PATCH" into buf.
func (v Version) AsShort(buf []byte) (int, error) { return writeInto(buf, v.shortString()) }

// AsLong writes "MAJOR.MINOR.PATCH[-TAG.N]" into buf.
func (v Version) AsLong(buf []byte) (int, error) { return writeInto(buf, v.longString()) }

// AsFull writes "MAJOR.MINOR.PATCH[-TAG.N][+BUILD]" into buf.
func (v Version) AsFull(buf []byte) (int, error) { return writeInto(buf, v.fullString()) }

func writeInto(buf []byte, s string) (int, error) {
	if len(buf) < len(s) {
		return 0, ErrBufferOverflow
	}
	return copy(buf, s), nil
}

// LenShort, LenLong, LenFull return the exact byte count of the
// corresponding printed form, without allocating a buffer.
func (v Version) LenShort() int { return len(v.shortString()) }
func (v Version) LenLong() int  { return len(v.longString()) }
func (v Version) LenFull() int  { return len(v.fullString()) }

func (v Version) shortString() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func (v Version) longString() string {
	s := v.shortString()
	if v.ReleaseType != Stable {
		s += fmt.Sprintf("-%s.%d", v.ReleaseType.tag(), v.ReleaseNumber)
	}
	return s
}

func (v Version) fullString() string {
	s := v.longString()
	if v.Build != 0 {
		s += fmt.Sprintf("+%d", v.Build)
	}
	return s
}

// String implements fmt.Stringer using the full writer, matching the
// original Rust implementation's Display/Debug impls (see SPEC_FULL.md
// "Supplemented features").
func (v Version) String() string { return v.fullString() }

// CompareStrong orders by (major, minor, patch, release-type rank,
// release-number, build). It is a total order.
func CompareStrong(a, b Version) int {
	if c := a.semverCore().Compare(b.semverCore()); c != 0 {
		return c
	}
	if c := cmpInt(a.ReleaseType.rank(), b.ReleaseType.rank()); c != 0 {
		return c
	}
	if c := cmpInt(int(a.ReleaseNumber), int(b.ReleaseNumber)); c != 0 {
		return c
	}
	return cmpInt64(a.Build, b.Build)
}

// Compare is CompareStrong but ignores build. InterfaceDescriptor equality
// does not use it; that goes through CompareStrong.
func Compare(a, b Version) int {
	if c := a.semverCore().Compare(b.semverCore()); c != 0 {
		return c
	}
	if c := cmpInt(a.ReleaseType.rank(), b.ReleaseType.rank()); c != 0 {
		return c
	}
	return cmpInt(int(a.ReleaseNumber), int(b.ReleaseNumber))
}

// CompareWeak ignores build, release type, and release number: only the
// major.minor.patch core is compared.
func CompareWeak(a, b Version) int {
	return a.semverCore().Compare(b.semverCore())
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Compatible reports whether a module exporting the `exported` version can
// satisfy a dependency that requires `required`, under a directional
// compatibility rule. Release type/number and build are ignored entirely.
func Compatible(exported, required Version) bool {
	if exported.Major != required.Major {
		return false
	}
	if exported.Major == 0 {
		return exported.Minor == required.Minor && exported.Patch >= required.Patch
	}
	if exported.Minor != required.Minor {
		return exported.Minor >= required.Minor
	}
	return exported.Patch >= required.Patch
}
