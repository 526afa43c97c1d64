package wire_test

import (
	"testing"

	"github.com/hahatianx/lumo/wire"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	tokens := []wire.Token{
		wire.Simple("OK"),
		wire.Err("bad request"),
		wire.Data([]byte("binary blob")),
		wire.Integer(42),
		wire.Float(3.25),
		wire.Null,
	}
	encoded := wire.EncodeAll(tokens...)
	parsed, err := wire.ParseAll(encoded)
	require.NoError(t, err)
	require.Equal(t, tokens, parsed)
}

func TestFramingHappyPath(t *testing.T) {
	input := []byte("+OK\r\n:42\r\n^\r\n")
	tokens, err := wire.ParseAll(input)
	require.NoError(t, err)
	require.Equal(t, []wire.Token{wire.Simple("OK"), wire.Integer(42), wire.Null}, tokens)
	require.Equal(t, input, wire.EncodeAll(tokens...))
}

func TestNullBodyMustBeEmpty(t *testing.T) {
	_, err := wire.ParseAll([]byte("^X\r\n"))
	require.Error(t, err)
}

func TestIntegerOverflow(t *testing.T) {
	_, err := wire.ParseAll([]byte(":18446744073709551616\r\n"))
	require.Error(t, err)
}

func TestMissingCRLF(t *testing.T) {
	_, _, err := wire.Parse([]byte("+OK"))
	require.Error(t, err)
}

func TestUnknownPrefix(t *testing.T) {
	_, _, err := wire.Parse([]byte("?OK\r\n"))
	require.Error(t, err)
}

func TestInvalidUTF8InSimple(t *testing.T) {
	_, _, err := wire.Parse(append([]byte{'+', 0xff, 0xfe}, '\r', '\n'))
	require.Error(t, err)
}
