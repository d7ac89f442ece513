package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	idx2 "github.com/mrjoshuak/go-idx2"
)

// v3Value is a pflag.Value holding an x,y,z triple. A single number sets
// all three components.
type v3Value idx2.V3

var _ pflag.Value = (*v3Value)(nil)

func (v *v3Value) String() string {
	return fmt.Sprintf("%d,%d,%d", v[0], v[1], v[2])
}

func (v *v3Value) Set(s string) error {
	parts := strings.Split(s, ",")
	if len(parts) != 1 && len(parts) != 3 {
		return fmt.Errorf("%q: want x,y,z", s)
	}
	var out idx2.V3
	for i := range out {
		p := parts[0]
		if len(parts) == 3 {
			p = parts[i]
		}
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return fmt.Errorf("%q: %w", s, err)
		}
		out[i] = n
	}
	*v = v3Value(out)
	return nil
}

func (v *v3Value) Type() string { return "x,y,z" }

// versionValue is a pflag.Value holding a major.minor format version.
type versionValue [2]int

func (v *versionValue) String() string { return fmt.Sprintf("%d.%d", v[0], v[1]) }

func (v *versionValue) Set(s string) error {
	major, minor, _ := strings.Cut(s, ".")
	var err error
	if v[0], err = strconv.Atoi(major); err != nil {
		return fmt.Errorf("version %q: %w", s, err)
	}
	v[1] = 0
	if minor != "" {
		if v[1], err = strconv.Atoi(minor); err != nil {
			return fmt.Errorf("version %q: %w", s, err)
		}
	}
	return nil
}

func (v *versionValue) Type() string { return "major.minor" }

// rawName matches <name>-<field>-[<x>-<y>-<z>]-<type>.raw.
var rawName = regexp.MustCompile(`^([^-]+)-([^-]+)-\[(\d+)-(\d+)-(\d+)\]-(Float32|Float64)`)

type rawInfo struct {
	name, field string
	dims        idx2.V3
	typ         idx2.DataType
}

// parseRawName extracts the dataset parameters from a raw file name.
func parseRawName(base string) (rawInfo, bool) {
	m := rawName.FindStringSubmatch(base)
	if m == nil {
		return rawInfo{}, false
	}
	info := rawInfo{name: m[1], field: m[2]}
	for i := range info.dims {
		info.dims[i], _ = strconv.Atoi(m[3+i])
	}
	typ, err := idx2.ParseDataType(m[6])
	if err != nil {
		return rawInfo{}, false
	}
	info.typ = typ
	return info, true
}
