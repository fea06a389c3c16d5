package applicability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailofbits/cvedb/src/applicability"
	"github.com/trailofbits/cvedb/src/cpe"
)

func mustParse(t *testing.T, s string) cpe.CPE {
	t.Helper()
	c, err := cpe.Parse(s)
	require.NoError(t, err)
	return c
}

func TestSerializeRoundTrip(t *testing.T) {
	leaf := mustParse(t, "cpe:2.3:a:acme:widget:1.0:*:*:*:*:*:*:*")
	start := "1.0"
	tree := applicability.And{
		Children: []applicability.Node{
			applicability.VersionRange{
				Wrapped:      applicability.CPELeaf{CPE: leaf},
				Start:        &start,
				IncludeStart: true,
			},
			applicability.Not{Wrapped: applicability.CPELeaf{CPE: leaf}},
		},
	}
	configs := applicability.Configurations{Nodes: []applicability.Node{tree}}

	dumped := configs.Dumps()
	loaded, err := applicability.Loads(dumped)
	require.NoError(t, err)
	assert.Equal(t, dumped, loaded.Dumps())
}

func TestVersionRangeMatch(t *testing.T) {
	pattern := mustParse(t, "cpe:2.3:a:acme:widget:*:*:*:*:*:*:*:*")
	start, end := "1.0", "2.0"
	node := applicability.VersionRange{
		Wrapped:      applicability.CPELeaf{CPE: pattern},
		Start:        &start,
		End:          &end,
		IncludeStart: true,
		IncludeEnd:   false,
	}

	inRange := mustParse(t, "cpe:2.3:a:acme:widget:1.5:*:*:*:*:*:*:*")
	assert.True(t, node.Match(inRange))

	atStart := mustParse(t, "cpe:2.3:a:acme:widget:1.0:*:*:*:*:*:*:*")
	assert.True(t, node.Match(atStart))

	atEnd := mustParse(t, "cpe:2.3:a:acme:widget:2.0:*:*:*:*:*:*:*")
	assert.False(t, node.Match(atEnd))

	before := mustParse(t, "cpe:2.3:a:acme:widget:0.9:*:*:*:*:*:*:*")
	assert.False(t, node.Match(before))
}

func TestNotInvertsMatch(t *testing.T) {
	pattern := mustParse(t, "cpe:2.3:a:acme:widget:1.0:*:*:*:*:*:*:*")
	node := applicability.Not{Wrapped: applicability.CPELeaf{CPE: pattern}}

	assert.False(t, node.Match(pattern))

	other := mustParse(t, "cpe:2.3:a:acme:other:1.0:*:*:*:*:*:*:*")
	assert.True(t, node.Match(other))
}

func TestVulnerableCPEsSkipsNegatedLeaves(t *testing.T) {
	vulnerable := mustParse(t, "cpe:2.3:a:acme:widget:1.0:*:*:*:*:*:*:*")
	notVulnerable := mustParse(t, "cpe:2.3:a:acme:gadget:1.0:*:*:*:*:*:*:*")

	configs := applicability.Configurations{
		Nodes: []applicability.Node{
			applicability.Or{Children: []applicability.Node{
				applicability.CPELeaf{CPE: vulnerable},
				applicability.Not{Wrapped: applicability.CPELeaf{CPE: notVulnerable}},
			}},
		},
	}

	cpes := configs.VulnerableCPEs()
	require.Len(t, cpes, 1)
	assert.Equal(t, vulnerable, cpes[0])
}

func TestConfigurationsMatchAnyTree(t *testing.T) {
	a := mustParse(t, "cpe:2.3:a:acme:widget:1.0:*:*:*:*:*:*:*")
	b := mustParse(t, "cpe:2.3:a:acme:gadget:1.0:*:*:*:*:*:*:*")
	configs := applicability.Configurations{
		Nodes: []applicability.Node{
			applicability.CPELeaf{CPE: a},
			applicability.CPELeaf{CPE: b},
		},
	}
	assert.True(t, configs.Match(b))

	other := mustParse(t, "cpe:2.3:a:acme:other:1.0:*:*:*:*:*:*:*")
	assert.False(t, configs.Match(other))
}
