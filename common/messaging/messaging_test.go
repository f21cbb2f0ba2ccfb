package messaging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordSubject(t *testing.T) {
	key := [32]byte{0xab, 0x01}
	subject := RecordSubject(key)

	assert.True(t, strings.HasPrefix(subject, SubjectRecords+"."))
	assert.Equal(t, "moebius.records.ab01"+strings.Repeat("0", 60), subject)
	assert.Len(t, strings.Split(subject, "."), 3)
}

func TestSubjectsDistinct(t *testing.T) {
	assert.NotEqual(t, SubjectKeeperCycles, SubjectRecords)
	assert.True(t, strings.HasSuffix(SubjectAllRecords, ".>"))
}
