package colstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndFormatBytes(t *testing.T) {
	b, err := ParseBytes("0x00ff")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff}, b)

	b, err = ParseBytes("alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), b)

	_, err = ParseBytes("0xzz")
	assert.Error(t, err)

	assert.Equal(t, "hello", FormatBytes([]byte("hello")))
	assert.Equal(t, "0x00ff", FormatBytes([]byte{0x00, 0xff}))
	assert.Equal(t, "0x0a", FormatBytes([]byte("\n")))
	assert.Equal(t, "", FormatBytes(nil))
}

func TestParseColumn(t *testing.T) {
	family, qualifier, err := ParseColumn("info:name")
	require.NoError(t, err)
	assert.Equal(t, "info", family)
	assert.Equal(t, "name", qualifier)

	for _, s := range []string{"info", ":name", "info:"} {
		_, _, err := ParseColumn(s)
		assert.Error(t, err, s)
	}
}

func TestMapFilter(t *testing.T) {
	lengths := Map([]string{"a", "bb", ""}, func(s string) int { return len(s) })
	assert.Equal(t, []int{1, 2, 0}, lengths)

	assert.Equal(t, []int{1, 2}, Filter(lengths, func(n int) bool { return n > 0 }))
	assert.Nil(t, Filter(lengths, func(n int) bool { return n > 5 }))
}
