package wire

import (
	"strconv"
)

var crlf = []byte{'\r', '\n'}

// Encode appends t's wire representation to dst and returns the result.
func Encode(dst []byte, t Token) []byte {
	switch t.Kind {
	case KindSimple:
		dst = append(dst, '+')
		dst = append(dst, t.Str...)
	case KindError:
		dst = append(dst, '-')
		dst = append(dst, t.Str...)
	case KindData:
		dst = append(dst, '$')
		dst = append(dst, t.Bytes...)
	case KindInteger:
		dst = append(dst, ':')
		dst = strconv.AppendUint(dst, t.Int, 10)
	case KindFloat:
		dst = append(dst, ',')
		dst = strconv.AppendFloat(dst, t.Float, 'g', -1, 64)
	case KindNull:
		dst = append(dst, '^')
	default:
		panic("wire: unknown token kind")
	}
	return append(dst, crlf...)
}

// EncodeAll encodes a full message (sequence of tokens) into one buffer.
func EncodeAll(tokens ...Token) []byte {
	var buf []byte
	for _, t := range tokens {
		buf = Encode(buf, t)
	}
	return buf
}
