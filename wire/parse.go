package wire

import (
	"bytes"
	"strconv"
	"unicode/utf8"

	"github.com/hahatianx/lumo/lumoerr"
)

// Parse reads a single token from the front of b, returning the token and
// the number of bytes consumed.
func Parse(b []byte) (Token, int, error) {
	if len(b) == 0 {
		return Token{}, 0, lumoerr.E(lumoerr.Invalid, "unexpected eof: empty input")
	}
	prefix, rest := b[0], b[1:]

	idx := bytes.Index(rest, crlf)
	if idx < 0 {
		return Token{}, 0, lumoerr.E(lumoerr.Invalid, "unexpected eof: token missing CRLF")
	}
	body := rest[:idx]
	consumed := 1 + idx + 2

	switch prefix {
	case '+':
		if !utf8.Valid(body) {
			return Token{}, 0, lumoerr.E(lumoerr.Invalid, "invalid UTF-8 in Simple token")
		}
		return Simple(string(body)), consumed, nil
	case '-':
		if !utf8.Valid(body) {
			return Token{}, 0, lumoerr.E(lumoerr.Invalid, "invalid UTF-8 in Error token")
		}
		return Err(string(body)), consumed, nil
	case '$':
		cp := make([]byte, len(body))
		copy(cp, body)
		return Data(cp), consumed, nil
	case ':':
		v, err := strconv.ParseUint(string(body), 10, 64)
		if err != nil {
			return Token{}, 0, lumoerr.E(lumoerr.Invalid, "invalid Integer token", err)
		}
		return Integer(v), consumed, nil
	case ',':
		v, err := strconv.ParseFloat(string(body), 64)
		if err != nil {
			return Token{}, 0, lumoerr.E(lumoerr.Invalid, "invalid Float token", err)
		}
		return Float(v), consumed, nil
	case '^':
		if len(body) != 0 {
			return Token{}, 0, lumoerr.E(lumoerr.Invalid, "Null token must have an empty body")
		}
		return Null, consumed, nil
	default:
		return Token{}, 0, lumoerr.E(lumoerr.Invalid, "unknown token prefix", string(prefix))
	}
}

// ParseAll parses every token in b, requiring the entire input be
// consumed with no trailing garbage.
func ParseAll(b []byte) ([]Token, error) {
	var tokens []Token
	for len(b) > 0 {
		t, n, err := Parse(b)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
		b = b[n:]
	}
	return tokens, nil
}
