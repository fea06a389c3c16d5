package nvd_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailofbits/cvedb/src/nvd"
)

const sampleFeed = `{
  "CVE_data_type": "CVE",
  "CVE_data_format": "MITRE",
  "CVE_data_version": "4.0",
  "CVE_Items": [
    {
      "cve": {
        "CVE_data_meta": {"ID": "CVE-2020-0001", "ASSIGNER": "cve@mitre.org"},
        "description": {"description_data": [{"lang": "en", "value": "an overflow bug"}]},
        "references": {"reference_data": [{"url": "https://example.com/a", "name": "ref-a", "refsource": "MISC"}]}
      },
      "configurations": {
        "nodes": [
          {
            "operator": "OR",
            "cpe_match": [
              {
                "vulnerable": true,
                "cpe23Uri": "cpe:2.3:a:acme:widget:*:*:*:*:*:*:*:*",
                "versionStartIncluding": "1.0",
                "versionEndExcluding": "2.0"
              }
            ]
          }
        ]
      },
      "impact": {
        "baseMetricV3": {"cvssV3": {"vectorString": "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H", "baseScore": 9.8}}
      },
      "publishedDate": "2020-01-01T00:00Z",
      "lastModifiedDate": "2020-02-01T00:00Z"
    }
  ]
}`

func TestIngestParsesItem(t *testing.T) {
	cves, errs := nvd.Ingest([]byte(sampleFeed))
	require.Empty(t, errs)
	require.Len(t, cves, 1)

	c := cves[0]
	assert.Equal(t, "CVE-2020-0001", c.CVEID)
	assert.Equal(t, "cve@mitre.org", c.Assigner)
	require.Len(t, c.Descriptions, 1)
	assert.Equal(t, "an overflow bug", c.Descriptions[0].Value)
	require.Len(t, c.References, 1)
	assert.Equal(t, "ref-a", c.References[0].Name)
	require.NotNil(t, c.Impact)
	assert.Equal(t, 3, c.Impact.Version)
	assert.Equal(t, 9.8, c.Impact.BaseScore)
	assert.Equal(t, "CRITICAL", c.Severity().String())
	assert.Len(t, c.Configurations.Nodes, 1)
}

func TestIngestRejectsBadHeader(t *testing.T) {
	bad := `{"CVE_data_type": "NOTCVE", "CVE_data_format": "MITRE", "CVE_data_version": "4.0", "CVE_Items": []}`
	cves, errs := nvd.Ingest([]byte(bad))
	assert.Nil(t, cves)
	require.Len(t, errs, 1)
}

func TestIngestRejectsUnknownCPEMatchKey(t *testing.T) {
	bad := `{
      "CVE_data_type": "CVE",
      "CVE_data_format": "MITRE",
      "CVE_data_version": "4.0",
      "CVE_Items": [
        {
          "cve": {"CVE_data_meta": {"ID": "CVE-2020-0002"}, "description": {"description_data": []}, "references": {"reference_data": []}},
          "configurations": {"nodes": [{"operator": "OR", "cpe_match": [{"vulnerable": true, "cpe23Uri": "cpe:2.3:a:acme:widget:1.0:*:*:*:*:*:*:*", "unknownField": true}]}]},
          "impact": {},
          "publishedDate": "2020-01-01T00:00Z",
          "lastModifiedDate": "2020-01-01T00:00Z"
        }
      ]
    }`
	cves, errs := nvd.Ingest([]byte(bad))
	assert.Empty(t, cves)
	require.Len(t, errs, 1)
}

func TestIngestPartialSuccessSkipsBadItem(t *testing.T) {
	mixed := `{
      "CVE_data_type": "CVE",
      "CVE_data_format": "MITRE",
      "CVE_data_version": "4.0",
      "CVE_Items": [
        {
          "cve": {"CVE_data_meta": {"ID": "CVE-2020-0003"}, "description": {"description_data": []}, "references": {"reference_data": []}},
          "configurations": {"nodes": []},
          "impact": {},
          "publishedDate": "not-a-date",
          "lastModifiedDate": "2020-01-01T00:00Z"
        },
        {
          "cve": {"CVE_data_meta": {"ID": "CVE-2020-0004"}, "description": {"description_data": []}, "references": {"reference_data": []}},
          "configurations": {"nodes": []},
          "impact": {},
          "publishedDate": "2020-01-01T00:00Z",
          "lastModifiedDate": "2020-01-01T00:00Z"
        }
      ]
    }`
	cves, errs := nvd.Ingest([]byte(mixed))
	require.Len(t, errs, 1)
	require.Len(t, cves, 1)
	assert.Equal(t, "CVE-2020-0004", cves[0].CVEID)
}
