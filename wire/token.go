// Package wire implements the CRLF-terminated token framing the UDP
// control plane uses. A message is a sequence of tokens; there is no
// outer length-prefix envelope.
package wire

import (
	"fmt"
)

// Kind discriminates the six token shapes.
type Kind int

const (
	KindSimple Kind = iota
	KindError
	KindData
	KindInteger
	KindFloat
	KindNull
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "Simple"
	case KindError:
		return "Error"
	case KindData:
		return "Data"
	case KindInteger:
		return "Integer"
	case KindFloat:
		return "Float"
	case KindNull:
		return "Null"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Token is one element of the wire grammar.
type Token struct {
	Kind  Kind
	Str   string  // Simple, Error
	Bytes []byte  // Data
	Int   uint64  // Integer
	Float float64 // Float
}

// Simple constructs a Simple token.
func Simple(s string) Token { return Token{Kind: KindSimple, Str: s} }

// Err constructs an Error token.
func Err(s string) Token { return Token{Kind: KindError, Str: s} }

// Data constructs a Data token.
func Data(b []byte) Token { return Token{Kind: KindData, Bytes: b} }

// Integer constructs an Integer token.
func Integer(v uint64) Token { return Token{Kind: KindInteger, Int: v} }

// Float constructs a Float token.
func Float(v float64) Token { return Token{Kind: KindFloat, Float: v} }

// Null is the Null token.
var Null = Token{Kind: KindNull}
