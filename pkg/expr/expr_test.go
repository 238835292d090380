package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplacePlaceholdersSubstitutes(t *testing.T) {
	ctx := Context{"name": "alice", "id": "7"}
	out, err := ReplacePlaceholders("user-%id-%name", ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-7-alice", out)
}

func TestReplacePlaceholdersMissing(t *testing.T) {
	_, err := ReplacePlaceholders("%missing", Context{})
	assert.Error(t, err)
}

func TestApplyFunctionUpperLower(t *testing.T) {
	up, err := ApplyFunction("UPPER", "abc")
	require.NoError(t, err)
	assert.Equal(t, "ABC", up)

	low, err := ApplyFunction("LOWER", "ABC")
	require.NoError(t, err)
	assert.Equal(t, "abc", low)
}

func TestApplyFunctionBase64(t *testing.T) {
	out, err := ApplyFunction("BASE64", "hello")
	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8=", out)
}

func TestApplyFunctionMD5(t *testing.T) {
	out, err := ApplyFunction("MD5", "hello")
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", out)
}

func TestApplyFunctionHashSHA256(t *testing.T) {
	out, err := ApplyFunction("HASH", "hello")
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", out)
}

func TestApplyFunctionChecksumCRC32(t *testing.T) {
	out, err := ApplyFunction("CHECKSUM", "CRC32,hello")
	require.NoError(t, err)
	assert.Equal(t, "907060870", out)
}

func TestApplyFunctionChecksumUnsupported(t *testing.T) {
	_, err := ApplyFunction("CHECKSUM", "ROT13,hello")
	assert.Error(t, err)
}

func TestApplyFunctionRandomLength(t *testing.T) {
	out, err := ApplyFunction("RANDOM", "12")
	require.NoError(t, err)
	assert.Len(t, out, 12)
}

func TestApplyFunctionUUIDFormat(t *testing.T) {
	out, err := ApplyFunction("UUID", "")
	require.NoError(t, err)
	assert.Len(t, out, 36)
}

func TestApplyFunctionRound(t *testing.T) {
	out, err := ApplyFunction("ROUND", "3.14159,2")
	require.NoError(t, err)
	assert.Equal(t, "3.14", out)
}

func TestApplyFunctionDecimal(t *testing.T) {
	out, err := ApplyFunction("DECIMAL", "3.1,3")
	require.NoError(t, err)
	assert.Equal(t, "3.100", out)
}

func TestApplyFunctionUnsupported(t *testing.T) {
	_, err := ApplyFunction("NOPE", "x")
	assert.Error(t, err)
}

func TestFormatTimestampUnknown(t *testing.T) {
	_, err := FormatTimestamp("nonsense")
	assert.Error(t, err)
}

func TestEvaluateNestedInnermostFirst(t *testing.T) {
	out, err := Evaluate("UPPER(LOWER(ABC))", Context{})
	require.NoError(t, err)
	assert.Equal(t, "ABC", out)
}

func TestEvaluatePlaceholderInsideFunction(t *testing.T) {
	ctx := Context{"word": "hello"}
	out, err := Evaluate("UPPER(%word)", ctx)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", out)
}

func TestEvaluateNoFunctionReturnsLiteral(t *testing.T) {
	out, err := Evaluate("plain-text", Context{})
	require.NoError(t, err)
	assert.Equal(t, "plain-text", out)
}

func TestEvaluatePropagatesMissingPlaceholderError(t *testing.T) {
	_, err := Evaluate("UPPER(%missing)", Context{})
	assert.Error(t, err)
}
