package filemeta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func buildIDNote(desc []byte) []byte {
	name := []byte("GNU\x00")
	note := make([]byte, 0, 12+len(name)+len(desc))
	note = append(note, le32Bytes(uint32(len(name)))...)
	note = append(note, le32Bytes(uint32(len(desc)))...)
	note = append(note, le32Bytes(3)...) // NT_GNU_BUILD_ID
	note = append(note, padTo4(name)...)
	note = append(note, padTo4(desc)...)
	return note
}

func le32Bytes(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func padTo4(b []byte) []byte {
	out := append([]byte(nil), b...)
	for len(out)%4 != 0 {
		out = append(out, 0)
	}
	return out
}

func TestParseBuildIDNote(t *testing.T) {
	desc := []byte{0xde, 0xad, 0xbe, 0xef, 0x01}
	note := buildIDNote(desc)

	got, ok := parseBuildIDNote(note)
	assert.True(t, ok)
	assert.Equal(t, desc, got)
}

func TestParseBuildIDNoteRejectsShortData(t *testing.T) {
	_, ok := parseBuildIDNote([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestAlign4(t *testing.T) {
	assert.Equal(t, uint32(0), align4(0))
	assert.Equal(t, uint32(4), align4(1))
	assert.Equal(t, uint32(4), align4(4))
	assert.Equal(t, uint32(8), align4(5))
}
