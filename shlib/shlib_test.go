package shlib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLdconfig(t *testing.T) {
	c := NewCache()
	output := "1234 libs found in cache `/etc/ld.so.cache'\n" +
		"\tlibz.so.1 (libc6,x86-64) => /lib/x86_64-linux-gnu/libz.so.1\n" +
		"\tlibc.so.6 (libc6) => /lib/i386-linux-gnu/libc.so.6\n"

	require.NoError(t, c.LoadLdconfig(output))

	obj, ok := c.lookup("libz.so.1", 64)
	require.True(t, ok)
	assert.Equal(t, "/lib/x86_64-linux-gnu/libz.so.1", obj.LibPath)

	_, ok = c.lookup("libc.so.6", 64)
	assert.False(t, ok)
	obj, ok = c.lookup("libc.so.6", 32)
	require.True(t, ok)
	assert.Equal(t, "/lib/i386-linux-gnu/libc.so.6", obj.LibPath)
}

func TestIsSharedObjectName(t *testing.T) {
	assert.True(t, isSharedObjectName("libfoo.so.1.2.3"))
	assert.True(t, isSharedObjectName("ld-linux-x86-64.so.2"))
	assert.False(t, isSharedObjectName("foo.so"))
}
