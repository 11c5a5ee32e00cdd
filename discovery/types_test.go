package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeTXT_RoundTrip(t *testing.T) {
	fields := encodeTXT("abc-123", "My Device", "1", 8642, true)
	rec := decodeTXT(fields)

	assert.Equal(t, "abc-123", rec.UUID)
	assert.Equal(t, "My Device", rec.DeviceName)
	assert.Equal(t, "1", rec.Version)
	assert.Equal(t, 8642, rec.Port)
	assert.True(t, rec.AuthRequired)
	assert.False(t, rec.Legacy)
}

func TestDecodeTXT_MissingUUIDIsLegacy(t *testing.T) {
	rec := decodeTXT([]string{"device_name=Old Box", "port=8080", "auth_required=false"})
	assert.True(t, rec.Legacy)
	assert.Equal(t, 8080, rec.Port)
	assert.False(t, rec.AuthRequired)
}

func TestDecodeTXT_MalformedPortDefaultsToZero(t *testing.T) {
	rec := decodeTXT([]string{"uuid=abc", "port=not-a-number"})
	assert.Equal(t, 0, rec.Port)
}

func TestRecordKey_PrefersUUIDOverInstanceName(t *testing.T) {
	assert.Equal(t, "abc-123", recordKey(Record{UUID: "abc-123", InstanceName: "legacy-name"}))
	assert.Equal(t, "legacy-name", recordKey(Record{InstanceName: "legacy-name"}))
}
