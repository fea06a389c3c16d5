package cve_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trailofbits/cvedb/src/cve"
)

func TestSeverityOfCVSS2(t *testing.T) {
	cases := []struct {
		score    float64
		expected cve.Severity
	}{
		{3.9, cve.SeverityLow},
		{4.0, cve.SeverityMedium},
		{6.9, cve.SeverityMedium},
		{7.0, cve.SeverityHigh},
		{10.0, cve.SeverityHigh},
	}
	for _, tc := range cases {
		impact := cve.ParseImpact("AV:N/AC:L/Au:N/C:P/I:P/A:P", tc.score)
		assert.Equal(t, tc.expected, cve.SeverityOf(&impact))
	}
}

func TestSeverityOfCVSS3(t *testing.T) {
	cases := []struct {
		score    float64
		expected cve.Severity
	}{
		{0.0, cve.SeverityNone},
		{3.9, cve.SeverityLow},
		{4.0, cve.SeverityMedium},
		{6.9, cve.SeverityMedium},
		{7.0, cve.SeverityHigh},
		{8.9, cve.SeverityHigh},
		{9.0, cve.SeverityCritical},
		{10.0, cve.SeverityCritical},
	}
	for _, tc := range cases {
		impact := cve.ParseImpact("CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H", tc.score)
		assert.Equal(t, tc.expected, cve.SeverityOf(&impact))
	}
}

func TestSeverityOfNilImpactIsUnknown(t *testing.T) {
	assert.Equal(t, cve.SeverityUnknown, cve.SeverityOf(nil))
}

func TestSeverityOrderingIsAscending(t *testing.T) {
	assert.Less(t, int(cve.SeverityNone), int(cve.SeverityUnknown))
	assert.Less(t, int(cve.SeverityUnknown), int(cve.SeverityLow))
	assert.Less(t, int(cve.SeverityLow), int(cve.SeverityMedium))
	assert.Less(t, int(cve.SeverityMedium), int(cve.SeverityHigh))
	assert.Less(t, int(cve.SeverityHigh), int(cve.SeverityCritical))
}

func TestCVEDescriptionDefaultsToEnglish(t *testing.T) {
	c := cve.CVE{
		CVEID: "CVE-2020-0001",
		Descriptions: []cve.Description{
			{Lang: "es", Value: "descripcion"},
			{Lang: "en", Value: "description"},
		},
	}
	value, ok := c.Description("")
	assert.True(t, ok)
	assert.Equal(t, "description", value)

	_, ok = c.Description("fr")
	assert.False(t, ok)
}
