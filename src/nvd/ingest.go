package nvd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/trailofbits/cvedb/src/applicability"
	"github.com/trailofbits/cvedb/src/cpe"
	"github.com/trailofbits/cvedb/src/cve"
)

const (
	expectedDataType   = "CVE"
	expectedDataFormat = "MITRE"
	expectedDataVer    = "4.0"
)

// rawFeed mirrors the top-level shape of an NVD 1.1 yearly feed file.
type rawFeed struct {
	CVEDataType    string       `json:"CVE_data_type"`
	CVEDataFormat  string       `json:"CVE_data_format"`
	CVEDataVersion string       `json:"CVE_data_version"`
	CVEItems       []rawCVEItem `json:"CVE_Items"`
}

type rawCVEItem struct {
	CVE struct {
		DataMeta struct {
			ID       string `json:"ID"`
			Assigner string `json:"ASSIGNER"`
		} `json:"CVE_data_meta"`
		Description struct {
			DescriptionData []struct {
				Lang  string `json:"lang"`
				Value string `json:"value"`
			} `json:"description_data"`
		} `json:"description"`
		References struct {
			ReferenceData []struct {
				URL       string `json:"url"`
				Name      string `json:"name"`
				Refsource string `json:"refsource"`
			} `json:"reference_data"`
		} `json:"references"`
	} `json:"cve"`
	Configurations struct {
		Nodes []rawNode `json:"nodes"`
	} `json:"configurations"`
	Impact struct {
		BaseMetricV2 *struct {
			CVSSV2 struct {
				VectorString string  `json:"vectorString"`
				BaseScore    float64 `json:"baseScore"`
			} `json:"cvssV2"`
		} `json:"baseMetricV2"`
		BaseMetricV3 *struct {
			CVSSV3 struct {
				VectorString string  `json:"vectorString"`
				BaseScore    float64 `json:"baseScore"`
			} `json:"cvssV3"`
		} `json:"baseMetricV3"`
	} `json:"impact"`
	PublishedDate    string `json:"publishedDate"`
	LastModifiedDate string `json:"lastModifiedDate"`
}

type rawNode struct {
	Operator string        `json:"operator"`
	Negate   bool          `json:"negate"`
	CPEMatch []rawCPEMatch `json:"cpe_match"`
	Children []rawNode     `json:"children"`
}

type rawCPEMatch struct {
	Vulnerable            bool   `json:"vulnerable"`
	CPE23URI              string `json:"cpe23Uri"`
	VersionStartIncluding string `json:"versionStartIncluding"`
	VersionStartExcluding string `json:"versionStartExcluding"`
	VersionEndIncluding   string `json:"versionEndIncluding"`
	VersionEndExcluding   string `json:"versionEndExcluding"`
}

// cpeMatchKnownKeys is the allowed key set for a leaf of
// configurations.nodes[].cpe_match[]; any other key is a hard parse error
// per §4.6.
var cpeMatchKnownKeys = map[string]bool{
	"vulnerable":            true,
	"cpe23Uri":              true,
	"cpe_name":              true,
	"versionStartIncluding": true,
	"versionStartExcluding": true,
	"versionEndIncluding":   true,
	"versionEndExcluding":   true,
}

func validateCPEMatchKeys(raw json.RawMessage) error {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	for k := range generic {
		if !cpeMatchKnownKeys[k] {
			return fmt.Errorf("nvd: unknown key %q on cpe_match leaf", k)
		}
	}
	return nil
}

// Ingest validates the NVD 1.1 feed header and translates every CVE item
// into a cve.CVE. A malformed individual item is recorded and skipped
// (partial-success ingest); a malformed header aborts the whole feed.
func Ingest(data []byte) ([]cve.CVE, []error) {
	var header struct {
		CVEDataType    string            `json:"CVE_data_type"`
		CVEDataFormat  string            `json:"CVE_data_format"`
		CVEDataVersion string            `json:"CVE_data_version"`
		CVEItems       []json.RawMessage `json:"CVE_Items"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, []error{fmt.Errorf("nvd: invalid feed JSON: %w", err)}
	}
	if header.CVEDataType != expectedDataType || header.CVEDataFormat != expectedDataFormat || header.CVEDataVersion != expectedDataVer {
		return nil, []error{fmt.Errorf(
			"nvd: unexpected feed header (type=%q format=%q version=%q)",
			header.CVEDataType, header.CVEDataFormat, header.CVEDataVersion)}
	}

	var cves []cve.CVE
	var errs []error
	for i, raw := range header.CVEItems {
		c, err := parseRawItem(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("nvd: item %d: %w", i, err))
			continue
		}
		cves = append(cves, c)
	}
	return cves, errs
}

func parseRawItem(raw json.RawMessage) (cve.CVE, error) {
	if err := validateRawItemKeys(raw); err != nil {
		return cve.CVE{}, err
	}
	var item rawCVEItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return cve.CVE{}, err
	}
	c, err := parseItem(item)
	if err != nil {
		return cve.CVE{}, fmt.Errorf("%s: %w", item.CVE.DataMeta.ID, err)
	}
	return c, nil
}

// validateRawItemKeys re-parses each cpe_match leaf in the raw JSON to
// enforce the known-keys contract; it is applied before parseItem commits
// to a tree shape.
func validateRawItemKeys(data []byte) error {
	var generic struct {
		Configurations struct {
			Nodes []json.RawMessage `json:"nodes"`
		} `json:"configurations"`
	}
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	return walkRawNodesForValidation(generic.Configurations.Nodes)
}

func walkRawNodesForValidation(nodes []json.RawMessage) error {
	for _, raw := range nodes {
		var n struct {
			CPEMatch []json.RawMessage `json:"cpe_match"`
			Children []json.RawMessage `json:"children"`
		}
		if err := json.Unmarshal(raw, &n); err != nil {
			return err
		}
		for _, m := range n.CPEMatch {
			if err := validateCPEMatchKeys(m); err != nil {
				return err
			}
		}
		if err := walkRawNodesForValidation(n.Children); err != nil {
			return err
		}
	}
	return nil
}

func parseItem(item rawCVEItem) (cve.CVE, error) {
	published, err := parseItemTime(item.PublishedDate)
	if err != nil {
		return cve.CVE{}, fmt.Errorf("publishedDate: %w", err)
	}
	modified, err := parseItemTime(item.LastModifiedDate)
	if err != nil {
		return cve.CVE{}, fmt.Errorf("lastModifiedDate: %w", err)
	}

	descriptions := make([]cve.Description, 0, len(item.CVE.Description.DescriptionData))
	for _, d := range item.CVE.Description.DescriptionData {
		descriptions = append(descriptions, cve.Description{Lang: d.Lang, Value: d.Value})
	}

	references := make([]cve.Reference, 0, len(item.CVE.References.ReferenceData))
	for _, r := range item.CVE.References.ReferenceData {
		name := r.Name
		if name == "" {
			name = r.Refsource
		}
		references = append(references, cve.Reference{Name: name, URL: r.URL})
	}

	var impact *cve.Impact
	if item.Impact.BaseMetricV3 != nil {
		v := cve.ParseImpact(item.Impact.BaseMetricV3.CVSSV3.VectorString, item.Impact.BaseMetricV3.CVSSV3.BaseScore)
		impact = &v
	} else if item.Impact.BaseMetricV2 != nil {
		v := cve.ParseImpact(item.Impact.BaseMetricV2.CVSSV2.VectorString, item.Impact.BaseMetricV2.CVSSV2.BaseScore)
		impact = &v
	}

	nodes := make([]applicability.Node, 0, len(item.Configurations.Nodes))
	for _, n := range item.Configurations.Nodes {
		parsed, err := parseNode(n)
		if err != nil {
			return cve.CVE{}, fmt.Errorf("configurations: %w", err)
		}
		nodes = append(nodes, parsed...)
	}

	return cve.CVE{
		CVEID:            item.CVE.DataMeta.ID,
		PublishedDate:    published,
		LastModifiedDate: modified,
		Impact:           impact,
		Descriptions:     descriptions,
		References:       references,
		Assigner:         item.CVE.DataMeta.Assigner,
		Configurations:   applicability.Configurations{Nodes: nodes},
	}, nil
}

// parseNode translates one configurations.nodes[] entry into zero or more
// applicability.Node values: an operator node becomes a single AND/OR node
// whose children union its "children" and "cpe_match" entries (§4.6); a
// node without an operator has those entries returned as siblings.
func parseNode(n rawNode) ([]applicability.Node, error) {
	var children []applicability.Node
	for _, m := range n.CPEMatch {
		leaf, err := parseCPEMatch(m)
		if err != nil {
			return nil, err
		}
		children = append(children, leaf)
	}
	for _, c := range n.Children {
		nested, err := parseNode(c)
		if err != nil {
			return nil, err
		}
		children = append(children, nested...)
	}

	if n.Operator == "" {
		return children, nil
	}
	switch n.Operator {
	case "AND":
		return []applicability.Node{applicability.And{Children: children, Negate: n.Negate}}, nil
	case "OR":
		return []applicability.Node{applicability.Or{Children: children, Negate: n.Negate}}, nil
	default:
		return nil, fmt.Errorf("unknown operator %q", n.Operator)
	}
}

func parseCPEMatch(m rawCPEMatch) (applicability.Node, error) {
	c, err := cpe.Parse(m.CPE23URI)
	if err != nil {
		return nil, fmt.Errorf("cpe_match: %w", err)
	}
	var node applicability.Node = applicability.CPELeaf{CPE: c}

	hasRange := m.VersionStartIncluding != "" || m.VersionStartExcluding != "" ||
		m.VersionEndIncluding != "" || m.VersionEndExcluding != ""
	if hasRange {
		vr := applicability.VersionRange{Wrapped: node}
		if m.VersionStartIncluding != "" {
			v := m.VersionStartIncluding
			vr.Start, vr.IncludeStart = &v, true
		} else if m.VersionStartExcluding != "" {
			v := m.VersionStartExcluding
			vr.Start, vr.IncludeStart = &v, false
		}
		if m.VersionEndIncluding != "" {
			v := m.VersionEndIncluding
			vr.End, vr.IncludeEnd = &v, true
		} else if m.VersionEndExcluding != "" {
			v := m.VersionEndExcluding
			vr.End, vr.IncludeEnd = &v, false
		}
		node = vr
	}

	if !m.Vulnerable {
		node = applicability.Not{Wrapped: node}
	}
	return node, nil
}

// parseItemTime parses the millisecond-less ISO-8601 timestamps used by
// NVD 1.1 CVE items.
func parseItemTime(s string) (time.Time, error) {
	layouts := []string{
		"2006-01-02T15:04Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05-07:00",
		time.RFC3339,
	}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}
