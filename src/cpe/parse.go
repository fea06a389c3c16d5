package cpe

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// avStringRegex matches a single AV-string field: an optional leading
// wildcard run, one or more of (alnum | -._ | escaped punctuation), an
// optional trailing wildcard run; or the bare logical sentinels * and -.
var avStringRegex = regexp.MustCompile(
	`^((\?+|\*)?([A-Za-z0-9\-._]|\\[\\?*!"#$%&'()+,/:;<=>@\[\]^` + "`" + `{|}~])+(\?+|\*)?|[*-])`)

// langTagRegex matches a lang field body: a 2-3 letter code with an
// optional region of 2 letters or 3 digits.
var langTagRegex = regexp.MustCompile(`^([A-Za-z]{2,3})(-([A-Za-z]{2}|[0-9]{3}))?`)

// FormatError reports a failure to parse a CPE 2.3 formatted string. It
// carries the byte offset and the fragment of input at which parsing
// failed, per the fail-fast scanner contract.
type FormatError struct {
	Offset  int
	Segment string
	Message string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("cpe: %s at offset %d (near %q)", e.Message, e.Offset, e.Segment)
}

// formattedStringParser is an offset-tracked scanner over a CPE 2.3
// formatted string.
type formattedStringParser struct {
	fs     string
	offset int
}

func (p *formattedStringParser) fail(message string) error {
	segment := p.fs[p.offset:]
	if len(segment) > 16 {
		segment = segment[:16] + "..."
	}
	return &FormatError{Offset: p.offset, Segment: segment, Message: message}
}

// expect consumes a literal prefix at the current offset.
func (p *formattedStringParser) expect(literal string) error {
	if !strings.HasPrefix(p.fs[p.offset:], literal) {
		return p.fail(fmt.Sprintf("expected %q", literal))
	}
	p.offset += len(literal)
	return nil
}

// upTo returns the text from the current offset up to (not including) the
// next occurrence of sep, advancing the offset past it. The final field
// has no trailing separator; callers pass atEnd to say so.
func (p *formattedStringParser) upTo(sep byte, atEnd bool) (string, error) {
	rest := p.fs[p.offset:]
	idx := strings.IndexByte(rest, sep)
	if idx < 0 {
		if !atEnd {
			return "", p.fail(fmt.Sprintf("expected %q", string(sep)))
		}
		p.offset += len(rest)
		return rest, nil
	}
	if atEnd {
		return "", p.fail("unexpected trailing content")
	}
	p.offset += idx + 1
	return rest[:idx], nil
}

// parseAVField parses a single attribute-value field, stopping at the
// field's own grammar boundary rather than at the next colon (so escaped
// colons inside a field are preserved).
func (p *formattedStringParser) parseAVField() (AVField, error) {
	rest := p.fs[p.offset:]
	loc := avStringRegex.FindStringIndex(rest)
	if loc == nil || loc[0] != 0 {
		return AVField{}, p.fail("invalid attribute-value string")
	}
	matched := rest[:loc[1]]
	p.offset += loc[1]
	switch matched {
	case "*":
		return AnyAV(), nil
	case "-":
		return NAAV(), nil
	default:
		return ConcreteAV(matched), nil
	}
}

func (p *formattedStringParser) parsePartField() (PartField, error) {
	av, err := p.parseAVField()
	if err != nil {
		return PartField{}, err
	}
	switch av.Logical {
	case Any:
		return AnyPart(), nil
	case NA:
		return NAPart(), nil
	}
	switch Part(av.Value) {
	case PartHardware, PartOS, PartApp:
		return ConcretePart(Part(av.Value)), nil
	default:
		return PartField{}, p.fail(fmt.Sprintf("invalid part %q", av.Value))
	}
}

func (p *formattedStringParser) parseLangField() (LangField, error) {
	rest := p.fs[p.offset:]
	if strings.HasPrefix(rest, "*") {
		p.offset++
		return AnyLang(), nil
	}
	if strings.HasPrefix(rest, "-") {
		p.offset++
		return NALang(), nil
	}
	loc := langTagRegex.FindStringSubmatchIndex(rest)
	if loc == nil || loc[0] != 0 {
		return LangField{}, p.fail("invalid language tag")
	}
	code := rest[loc[2]:loc[3]]
	region := ""
	if loc[6] >= 0 {
		region = rest[loc[6]:loc[7]]
		if len(region) == 3 {
			n, err := strconv.Atoi(region)
			if err != nil {
				return LangField{}, p.fail("invalid UN M.49 region")
			}
			region = fmt.Sprintf("%03d", n)
		} else {
			region = strings.ToUpper(region)
		}
	}
	p.offset += loc[1]
	return ConcreteLang(Language{Code: strings.ToLower(code), Region: region}), nil
}

// Parse parses a CPE 2.3 formatted string. It anchors "cpe:2.3:", then
// extracts exactly 11 colon-delimited fields; trailing content after the
// 11th field is a format error.
func Parse(s string) (CPE, error) {
	p := &formattedStringParser{fs: s}
	if err := p.expect("cpe:2.3:"); err != nil {
		return CPE{}, err
	}

	part, err := p.parsePartField()
	if err != nil {
		return CPE{}, err
	}
	if err := p.expect(":"); err != nil {
		return CPE{}, err
	}

	avFields := make([]AVField, 0, 9)
	parseField := func() (AVField, error) {
		f, err := p.parseAVField()
		if err != nil {
			return AVField{}, err
		}
		if err := p.expect(":"); err != nil {
			return AVField{}, err
		}
		return f, nil
	}
	for i := 0; i < 4; i++ { // vendor, product, version, update
		f, err := parseField()
		if err != nil {
			return CPE{}, err
		}
		avFields = append(avFields, f)
	}
	edition, err := parseField()
	if err != nil {
		return CPE{}, err
	}

	lang, err := p.parseLangField()
	if err != nil {
		return CPE{}, err
	}
	if err := p.expect(":"); err != nil {
		return CPE{}, err
	}

	for i := 0; i < 3; i++ { // sw_edition, target_sw, target_hw
		f, err := parseField()
		if err != nil {
			return CPE{}, err
		}
		avFields = append(avFields, f)
	}
	other, err := p.parseAVField()
	if err != nil {
		return CPE{}, err
	}
	if p.offset != len(p.fs) {
		return CPE{}, p.fail("unexpected trailing content")
	}

	return CPE{
		Part:      part,
		Vendor:    avFields[0],
		Product:   avFields[1],
		Version:   avFields[2],
		Update:    avFields[3],
		Edition:   edition,
		Lang:      lang,
		SWEdition: avFields[4],
		TargetSW:  avFields[5],
		TargetHW:  avFields[6],
		Other:     other,
	}, nil
}
