package dirsrv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogfmtSimplePairs(t *testing.T) {
	pairs := parseLogfmt(`partition="/var/lib/dirsrv" size="10000" used="2500" available="7500" use%="25"`)

	assert.Equal(t, "/var/lib/dirsrv", pairs["partition"])
	assert.Equal(t, "10000", pairs["size"])
	assert.Equal(t, "25", pairs["use%"])
}

func TestParseLogfmtUnquotedValues(t *testing.T) {
	pairs := parseLogfmt("a=1 b=2")

	assert.Equal(t, "1", pairs["a"])
	assert.Equal(t, "2", pairs["b"])
}

func TestParseLogfmtQuotedSpacesAndEscapes(t *testing.T) {
	pairs := parseLogfmt(`path="/mnt/big disk" note="say \"hi\"" flag`)

	assert.Equal(t, "/mnt/big disk", pairs["path"])
	assert.Equal(t, `say "hi"`, pairs["note"])
	// Bare keys are kept with an empty value.
	_, ok := pairs["flag"]
	assert.True(t, ok)
	assert.Equal(t, "", pairs["flag"])
}

func TestParseLogfmtDropsGarbage(t *testing.T) {
	pairs := parseLogfmt("=orphan a=1")

	assert.NotContains(t, pairs, "orphan")
	assert.Equal(t, "1", pairs["a"])
}

func TestParseLogfmtDropsUnterminatedQuote(t *testing.T) {
	pairs := parseLogfmt(`a=1 b="never closed`)

	assert.Equal(t, "1", pairs["a"])
	assert.NotContains(t, pairs, "b")
}

func TestParseConnection(t *testing.T) {
	raw := "1:20260115103000Z:3:2:-:cn=directory manager:0:0:0:1:ip=10.1.2.3"
	conn := parseConnection(raw)

	assert.Equal(t, "cn=directory manager", conn.DN)
	assert.Equal(t, "10.1.2.3", conn.IP)
}

func TestParseConnectionShortDescriptor(t *testing.T) {
	conn := parseConnection("1:2:3")

	assert.Equal(t, "UNKNOWN", conn.DN)
	assert.Equal(t, "UNKNOWN", conn.IP)
}
