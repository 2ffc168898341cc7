package dsl

import (
	"strconv"
	"strings"
)

// Features is the capability set selected by a mapping's dsl_version. The
// version is read once; pipelines never mix feature sets.
type Features struct {
	// ArrayCombinators enables the zip and objectify operators.
	ArrayCombinators bool
	// ExtendedTypes enables the integer and ip field types.
	ExtendedTypes bool
	// FieldOptions enables ignore_above, null_value and copy_to.
	FieldOptions bool
}

// FeaturesFor selects the feature set for a version string. Versions at or
// above 2.2 carry the full set; anything older (or unparseable) gets the
// 2.1 baseline.
func FeaturesFor(version string) Features {
	major, minor := parseVersion(version)
	v22 := major > 2 || (major == 2 && minor >= 2)
	return Features{
		ArrayCombinators: v22,
		ExtendedTypes:    v22,
		FieldOptions:     v22,
	}
}

// Features returns the capability set for this mapping.
func (m *Mapping) Features() Features {
	return FeaturesFor(m.DSLVersion)
}

func parseVersion(v string) (int, int) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return 0, 0
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return major, 0
	}
	return major, minor
}
