// Package cpe implements the CPE 2.3 formatted-string binding: the data
// model for attribute-value fields, the language tag, and the parser and
// serializer for the "cpe:2.3:..." formatted string.
package cpe

import "strings"

// Logical distinguishes a concrete attribute-value from the two logical
// wildcard sentinels ANY and NA.
type Logical uint8

const (
	// Concrete marks a field carrying an ordinary value.
	Concrete Logical = iota
	// Any is the "*" sentinel: matches anything.
	Any
	// NA is the "-" sentinel: matches only another NA.
	NA
)

func (l Logical) String() string {
	switch l {
	case Any:
		return "*"
	case NA:
		return "-"
	default:
		return ""
	}
}

// Part is the restricted vocabulary of the CPE "part" field.
type Part string

const (
	PartHardware Part = "h"
	PartOS       Part = "o"
	PartApp      Part = "a"
)

// PartField is the part attribute: one of the three concrete Part values,
// or a logical sentinel.
type PartField struct {
	Logical Logical
	Value   Part
}

func ConcretePart(p Part) PartField { return PartField{Logical: Concrete, Value: p} }
func AnyPart() PartField            { return PartField{Logical: Any} }
func NAPart() PartField             { return PartField{Logical: NA} }

func (f PartField) String() string {
	if f.Logical != Concrete {
		return f.Logical.String()
	}
	return string(f.Value)
}

func (f PartField) IsAny() bool { return f.Logical == Any }

// AVField is an attribute-value field: a concrete AV string, or one of the
// two logical sentinels.
type AVField struct {
	Logical Logical
	Value   string
}

func ConcreteAV(s string) AVField { return AVField{Logical: Concrete, Value: s} }
func AnyAV() AVField              { return AVField{Logical: Any} }
func NAAV() AVField               { return AVField{Logical: NA} }

func (f AVField) String() string {
	if f.Logical != Concrete {
		return f.Logical.String()
	}
	return f.Value
}

func (f AVField) IsAny() bool { return f.Logical == Any }
func (f AVField) IsNA() bool  { return f.Logical == NA }

// Language is a parsed lang tag: an ISO 639 code plus an optional region
// (ISO 3166-1 alpha-2, or a UN M.49 three-digit numeric area).
type Language struct {
	Code   string
	Region string
}

func (l Language) String() string {
	if l.Region == "" {
		return strings.ToLower(l.Code)
	}
	return strings.ToLower(l.Code) + "-" + l.Region
}

// LangField is the lang attribute: a concrete Language, or a logical
// sentinel.
type LangField struct {
	Logical Logical
	Value   Language
}

func ConcreteLang(l Language) LangField { return LangField{Logical: Concrete, Value: l} }
func AnyLang() LangField                { return LangField{Logical: Any} }
func NALang() LangField                 { return LangField{Logical: NA} }

func (f LangField) String() string {
	if f.Logical != Concrete {
		return f.Logical.String()
	}
	return f.Value.String()
}

// CPE is the 11-field CPE 2.3 identifier. It is a plain comparable value
// type: two CPEs are equal iff every field is equal, and a CPE may be used
// directly as a map key.
type CPE struct {
	Part      PartField
	Vendor    AVField
	Product   AVField
	Version   AVField
	Update    AVField
	Edition   AVField
	Lang      LangField
	SWEdition AVField
	TargetSW  AVField
	TargetHW  AVField
	Other     AVField
}

// Wildcard returns the CPE with every field set to ANY.
func Wildcard() CPE {
	return CPE{
		Part:      AnyPart(),
		Vendor:    AnyAV(),
		Product:   AnyAV(),
		Version:   AnyAV(),
		Update:    AnyAV(),
		Edition:   AnyAV(),
		Lang:      AnyLang(),
		SWEdition: AnyAV(),
		TargetSW:  AnyAV(),
		TargetHW:  AnyAV(),
		Other:     AnyAV(),
	}
}

// IsCompleteWildcard reports whether every field of c is ANY.
func (c CPE) IsCompleteWildcard() bool {
	return c.Part.IsAny() &&
		c.Vendor.IsAny() &&
		c.Product.IsAny() &&
		c.Version.IsAny() &&
		c.Update.IsAny() &&
		c.Edition.IsAny() &&
		c.Lang.Logical == Any &&
		c.SWEdition.IsAny() &&
		c.TargetSW.IsAny() &&
		c.TargetHW.IsAny() &&
		c.Other.IsAny()
}

// String renders c as its CPE 2.3 formatted string.
func (c CPE) String() string {
	fields := []string{
		c.Part.String(),
		c.Vendor.String(),
		c.Product.String(),
		c.Version.String(),
		c.Update.String(),
		c.Edition.String(),
		c.Lang.String(),
		c.SWEdition.String(),
		c.TargetSW.String(),
		c.TargetHW.String(),
		c.Other.String(),
	}
	return "cpe:2.3:" + strings.Join(fields, ":")
}

// Less implements the total lexicographic tuple order over CPE values. It
// compares the formatted-string representation of each field in turn,
// which orders the logical sentinels ('*' and '-') against ordinary
// characters by their ASCII value.
func (c CPE) Less(other CPE) bool {
	af := []string{
		c.Part.String(), c.Vendor.String(), c.Product.String(), c.Version.String(),
		c.Update.String(), c.Edition.String(), c.Lang.String(), c.SWEdition.String(),
		c.TargetSW.String(), c.TargetHW.String(), c.Other.String(),
	}
	bf := []string{
		other.Part.String(), other.Vendor.String(), other.Product.String(), other.Version.String(),
		other.Update.String(), other.Edition.String(), other.Lang.String(), other.SWEdition.String(),
		other.TargetSW.String(), other.TargetHW.String(), other.Other.String(),
	}
	for i := range af {
		if af[i] != bf[i] {
			return af[i] < bf[i]
		}
	}
	return false
}

// FieldsMatch reports whether two AV fields match per the CPE matching
// semantics: either side ANY matches anything; either side NA matches only
// the other side's NA; otherwise the values must be equal.
func FieldsMatch(a, b AVField) bool {
	if a.Logical == Any || b.Logical == Any {
		return true
	}
	if a.Logical == NA || b.Logical == NA {
		return a.Logical == NA && b.Logical == NA
	}
	return a.Value == b.Value
}

// PartFieldsMatch is FieldsMatch specialized to the part attribute.
func PartFieldsMatch(a, b PartField) bool {
	if a.Logical == Any || b.Logical == Any {
		return true
	}
	if a.Logical == NA || b.Logical == NA {
		return a.Logical == NA && b.Logical == NA
	}
	return a.Value == b.Value
}

// LangFieldsMatch is FieldsMatch specialized to the lang attribute.
func LangFieldsMatch(a, b LangField) bool {
	if a.Logical == Any || b.Logical == Any {
		return true
	}
	if a.Logical == NA || b.Logical == NA {
		return a.Logical == NA && b.Logical == NA
	}
	return a.Value == b.Value
}

// Match reports whether pattern matches target under the standard CPE
// field-by-field comparison. When includeVersion is false the version
// field is skipped, which is how VersionRange delegates to a wrapped CPE
// leaf after applying its own range predicate.
func Match(pattern, target CPE, includeVersion bool) bool {
	if !PartFieldsMatch(pattern.Part, target.Part) {
		return false
	}
	if !FieldsMatch(pattern.Vendor, target.Vendor) {
		return false
	}
	if !FieldsMatch(pattern.Product, target.Product) {
		return false
	}
	if includeVersion && !FieldsMatch(pattern.Version, target.Version) {
		return false
	}
	if !FieldsMatch(pattern.Update, target.Update) {
		return false
	}
	if !FieldsMatch(pattern.Edition, target.Edition) {
		return false
	}
	if !LangFieldsMatch(pattern.Lang, target.Lang) {
		return false
	}
	if !FieldsMatch(pattern.SWEdition, target.SWEdition) {
		return false
	}
	if !FieldsMatch(pattern.TargetSW, target.TargetSW) {
		return false
	}
	if !FieldsMatch(pattern.TargetHW, target.TargetHW) {
		return false
	}
	if !FieldsMatch(pattern.Other, target.Other) {
		return false
	}
	return true
}
