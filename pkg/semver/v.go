// Package semver renders semantic version fingerprints.
package semver

import (
	"strconv"
	"strings"
)

type (
	// V is structured semantic version representation
	V struct {
		Major, Minor, Patch uint
		PreRelease          string
		BuildMetadata       []string
	}
)

// Core - returns "MAJOR.MINOR.PATCH" part only.
func (v V) Core() string {
	return strings.Join([]string{
		strconv.FormatUint(uint64(v.Major), 10),
		strconv.FormatUint(uint64(v.Minor), 10),
		strconv.FormatUint(uint64(v.Patch), 10),
	}, ".")
}

func (v V) String() string {
	buf := strings.Builder{}
	buf.WriteString(v.Core())
	if v.PreRelease != "" {
		buf.WriteByte('-')
		buf.WriteString(v.PreRelease)
	}
	if len(v.BuildMetadata) > 0 {
		buf.WriteByte('+')
		buf.WriteString(strings.Join(v.BuildMetadata, "."))
	}
	return buf.String()
}

// WithBuild - returns copy of v with extra build metadata identifiers.
func (v V) WithBuild(meta ...string) V {
	v.BuildMetadata = append(append([]string(nil), v.BuildMetadata...), meta...)
	return v
}
