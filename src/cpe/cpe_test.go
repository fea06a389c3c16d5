package cpe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailofbits/cvedb/src/cpe"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"cpe:2.3:a:microsoft:internet_explorer:8.0.6001:beta:*:*:*:*:*:*",
		"cpe:2.3:a:microsoft:internet_explorer:*:sp2:*:*:*:*:*:*",
		"cpe:2.3:a:\\$0\\$:-:8.*:*:*:*:*:*:*:*",
		"cpe:2.3:o:cisco:ios:12.1:*:*:*:*:*:*:*",
	}
	for _, s := range cases {
		c, err := cpe.Parse(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, c.String())
	}
}

func TestParseRejectsTrailingContent(t *testing.T) {
	_, err := cpe.Parse("cpe:2.3:a:vendor:product:1.0:*:*:*:*:*:*:*:extra")
	require.Error(t, err)
	var fe *cpe.FormatError
	require.ErrorAs(t, err, &fe)
}

func TestParseRejectsBadPart(t *testing.T) {
	_, err := cpe.Parse("cpe:2.3:x:vendor:product:1.0:*:*:*:*:*:*:*")
	require.Error(t, err)
}

func TestParseLangWithRegion(t *testing.T) {
	c, err := cpe.Parse("cpe:2.3:a:vendor:product:1.0:*:*:en-us:*:*:*:*")
	require.NoError(t, err)
	assert.Equal(t, "en", c.Lang.Value.Code)
	assert.Equal(t, "US", c.Lang.Value.Region)
	assert.Equal(t, "en-US", c.Lang.String())
}

func TestIsCompleteWildcard(t *testing.T) {
	assert.True(t, cpe.Wildcard().IsCompleteWildcard())

	c, err := cpe.Parse("cpe:2.3:a:vendor:*:*:*:*:*:*:*:*:*")
	require.NoError(t, err)
	assert.False(t, c.IsCompleteWildcard())
}

func TestMatchWildcardPattern(t *testing.T) {
	pattern := cpe.Wildcard()
	pattern.Vendor = cpe.ConcreteAV("acme")

	target, err := cpe.Parse("cpe:2.3:a:acme:widget:1.0:*:*:*:*:*:*:*")
	require.NoError(t, err)
	assert.True(t, cpe.Match(pattern, target, true))

	other, err := cpe.Parse("cpe:2.3:a:other:widget:1.0:*:*:*:*:*:*:*")
	require.NoError(t, err)
	assert.False(t, cpe.Match(pattern, other, true))
}

func TestMatchNAOnlyMatchesNA(t *testing.T) {
	pattern := cpe.Wildcard()
	pattern.Update = cpe.NAAV()

	withUpdate, err := cpe.Parse("cpe:2.3:a:acme:widget:1.0:sp1:*:*:*:*:*:*")
	require.NoError(t, err)
	assert.False(t, cpe.Match(pattern, withUpdate, true))

	withoutUpdate, err := cpe.Parse("cpe:2.3:a:acme:widget:1.0:-:*:*:*:*:*:*")
	require.NoError(t, err)
	assert.True(t, cpe.Match(pattern, withoutUpdate, true))
}

func TestLess(t *testing.T) {
	a, _ := cpe.Parse("cpe:2.3:a:acme:alpha:1.0:*:*:*:*:*:*:*")
	b, _ := cpe.Parse("cpe:2.3:a:acme:beta:1.0:*:*:*:*:*:*:*")
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
}
