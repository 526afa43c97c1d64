package control

import (
	"github.com/hahatianx/lumo/aecrypt"
	"github.com/hahatianx/lumo/api"
	"github.com/hahatianx/lumo/lumoerr"
	"github.com/hahatianx/lumo/wire"
)

// Mode is HELLO's bitmask: bit 0 requests a reply, bit 1 marks the
// sender as the current leader.
type Mode uint64

const (
	ModeRequestReply Mode = 1 << 0
	ModeIsLeader     Mode = 1 << 1
)

// Hello is the bootstrap heartbeat/discovery message.
type Hello struct {
	FromIP   string
	FromPort uint64
	FromName string
	MACAddr  string
	Mode     Mode
}

// Encode renders h as its wire tokens: [Simple "HELLO", Simple from_ip,
// Integer from_port, Simple from_name, Simple mac_addr, Integer mode].
func (h Hello) Encode() []byte {
	return wire.EncodeAll(
		wire.Simple("HELLO"),
		wire.Simple(h.FromIP),
		wire.Integer(h.FromPort),
		wire.Simple(h.FromName),
		wire.Simple(h.MACAddr),
		wire.Integer(uint64(h.Mode)),
	)
}

func decodeHello(tokens []wire.Token) (Hello, error) {
	if len(tokens) != 6 {
		return Hello{}, lumoerr.E(lumoerr.Invalid, "HELLO: wrong token count")
	}
	fromIP, err := simpleAt(tokens, 1, "from_ip")
	if err != nil {
		return Hello{}, err
	}
	fromPort, err := integerAt(tokens, 2, "from_port")
	if err != nil {
		return Hello{}, err
	}
	fromName, err := simpleAt(tokens, 3, "from_name")
	if err != nil {
		return Hello{}, err
	}
	mac, err := simpleAt(tokens, 4, "mac_addr")
	if err != nil {
		return Hello{}, err
	}
	mode, err := integerAt(tokens, 5, "mode")
	if err != nil {
		return Hello{}, err
	}
	return Hello{FromIP: fromIP, FromPort: fromPort, FromName: fromName, MACAddr: mac, Mode: Mode(mode)}, nil
}

// ApiRequest wraps an api.Request for transport.
type ApiRequest struct {
	FromIP   string
	FromPort uint64
	Request  api.Request
}

// Encode renders the ApiRequest as [Simple "API_REQUEST", Simple from_ip,
// Integer from_port, Data <gob(api.Request)>].
func (m ApiRequest) Encode() ([]byte, error) {
	payload, err := api.EncodeRequest(m.Request)
	if err != nil {
		return nil, err
	}
	return wire.EncodeAll(
		wire.Simple("API_REQUEST"),
		wire.Simple(m.FromIP),
		wire.Integer(m.FromPort),
		wire.Data(payload),
	), nil
}

func decodeApiRequest(tokens []wire.Token) (ApiRequest, error) {
	if len(tokens) != 4 {
		return ApiRequest{}, lumoerr.E(lumoerr.Invalid, "API_REQUEST: wrong token count")
	}
	fromIP, err := simpleAt(tokens, 1, "from_ip")
	if err != nil {
		return ApiRequest{}, err
	}
	fromPort, err := integerAt(tokens, 2, "from_port")
	if err != nil {
		return ApiRequest{}, err
	}
	payload, err := dataAt(tokens, 3, "request")
	if err != nil {
		return ApiRequest{}, err
	}
	req, err := api.DecodeRequest(payload)
	if err != nil {
		return ApiRequest{}, err
	}
	return ApiRequest{FromIP: fromIP, FromPort: fromPort, Request: req}, nil
}

// ApiResponse wraps an api.Response for transport.
type ApiResponse struct {
	Response api.Response
}

// Encode renders [Simple "API_RESPONSE", Data <gob(api.Response)>].
func (m ApiResponse) Encode() ([]byte, error) {
	payload, err := api.EncodeResponse(m.Response)
	if err != nil {
		return nil, err
	}
	return wire.EncodeAll(wire.Simple("API_RESPONSE"), wire.Data(payload)), nil
}

func decodeApiResponse(tokens []wire.Token) (ApiResponse, error) {
	if len(tokens) != 2 {
		return ApiResponse{}, lumoerr.E(lumoerr.Invalid, "API_RESPONSE: wrong token count")
	}
	payload, err := dataAt(tokens, 1, "response")
	if err != nil {
		return ApiResponse{}, err
	}
	resp, err := api.DecodeResponse(payload)
	if err != nil {
		return ApiResponse{}, err
	}
	return ApiResponse{Response: resp}, nil
}

// Pull wraps an AEAD-sealed PullRequest.
type Pull struct {
	FromIP  string
	Request PullRequest
}

// Encode seals m.Request with cipher using the deterministic PULL IV and
// renders [Simple "PULL", Simple from_ip, Data <sealed request>].
func (m Pull) Encode(cipher *aecrypt.Cipher) ([]byte, error) {
	plain, err := encodePullRequest(m.Request)
	if err != nil {
		return nil, err
	}
	sealed := cipher.SealDeterministic(m.Request.Challenge, plain)
	return wire.EncodeAll(wire.Simple("PULL"), wire.Simple(m.FromIP), wire.Data(sealed)), nil
}

func decodePull(tokens []wire.Token, cipher *aecrypt.Cipher) (Pull, error) {
	if len(tokens) != 3 {
		return Pull{}, lumoerr.E(lumoerr.Invalid, "PULL: wrong token count")
	}
	fromIP, err := simpleAt(tokens, 1, "from_ip")
	if err != nil {
		return Pull{}, err
	}
	sealed, err := dataAt(tokens, 2, "request")
	if err != nil {
		return Pull{}, err
	}
	plain, err := cipher.Open(sealed)
	if err != nil {
		return Pull{}, err
	}
	req, err := decodePullRequest(plain)
	if err != nil {
		return Pull{}, err
	}
	return Pull{FromIP: fromIP, Request: req}, nil
}

// PullResponseMsg wraps an AEAD-sealed PullResponse.
type PullResponseMsg struct {
	FromIP   string
	Response PullResponse
}

// Encode seals m.Response with a random IV and renders [Simple
// "PULL_RESPONSE", Simple from_ip, Data <sealed response>].
func (m PullResponseMsg) Encode(cipher *aecrypt.Cipher) ([]byte, error) {
	plain, err := encodePullResponse(m.Response)
	if err != nil {
		return nil, err
	}
	sealed, err := cipher.Seal(plain)
	if err != nil {
		return nil, err
	}
	return wire.EncodeAll(wire.Simple("PULL_RESPONSE"), wire.Simple(m.FromIP), wire.Data(sealed)), nil
}

func decodePullResponseMsg(tokens []wire.Token, cipher *aecrypt.Cipher) (PullResponseMsg, error) {
	if len(tokens) != 3 {
		return PullResponseMsg{}, lumoerr.E(lumoerr.Invalid, "PULL_RESPONSE: wrong token count")
	}
	fromIP, err := simpleAt(tokens, 1, "from_ip")
	if err != nil {
		return PullResponseMsg{}, err
	}
	sealed, err := dataAt(tokens, 2, "response")
	if err != nil {
		return PullResponseMsg{}, err
	}
	plain, err := cipher.Open(sealed)
	if err != nil {
		return PullResponseMsg{}, err
	}
	resp, err := decodePullResponse(plain)
	if err != nil {
		return PullResponseMsg{}, err
	}
	return PullResponseMsg{FromIP: fromIP, Response: resp}, nil
}

// Decode inspects the leading Simple token of tokens and dispatches to
// the matching message decoder, returning one of Hello, ApiRequest,
// ApiResponse, Pull, or PullResponseMsg as an untyped value. cipher is
// only needed for PULL/PULL_RESPONSE; pass nil when a caller is known
// never to receive those (e.g. a client-only listener).
func Decode(tokens []wire.Token, cipher *aecrypt.Cipher) (interface{}, error) {
	if len(tokens) == 0 || tokens[0].Kind != wire.KindSimple {
		return nil, lumoerr.E(lumoerr.Invalid, "message missing leading Simple tag")
	}
	switch tokens[0].Str {
	case "HELLO":
		return decodeHello(tokens)
	case "API_REQUEST":
		return decodeApiRequest(tokens)
	case "API_RESPONSE":
		return decodeApiResponse(tokens)
	case "PULL":
		return decodePull(tokens, cipher)
	case "PULL_RESPONSE":
		return decodePullResponseMsg(tokens, cipher)
	default:
		return nil, lumoerr.E(lumoerr.Invalid, "unknown message tag: "+tokens[0].Str)
	}
}

func simpleAt(tokens []wire.Token, i int, field string) (string, error) {
	if tokens[i].Kind != wire.KindSimple {
		return "", lumoerr.E(lumoerr.Invalid, "expected Simple for "+field)
	}
	return tokens[i].Str, nil
}

func integerAt(tokens []wire.Token, i int, field string) (uint64, error) {
	if tokens[i].Kind != wire.KindInteger {
		return 0, lumoerr.E(lumoerr.Invalid, "expected Integer for "+field)
	}
	return tokens[i].Int, nil
}

func dataAt(tokens []wire.Token, i int, field string) ([]byte, error) {
	if tokens[i].Kind != wire.KindData {
		return nil, lumoerr.E(lumoerr.Invalid, "expected Data for "+field)
	}
	return tokens[i].Bytes, nil
}
