package api_test

import (
	"testing"

	"github.com/hahatianx/lumo/api"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	req := api.Request{Kind: api.LocalPullFile, Path: "A/B/c.bin", ExpectedChecksum: 0xDEADBEEF, HasChecksum: true}
	b, err := api.EncodeRequest(req)
	require.NoError(t, err)
	got, err := api.DecodeRequest(b)
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestResponseRoundTrip(t *testing.T) {
	resp := api.Response{
		Kind: api.RespInfo,
		Info: api.NodeInfo{Name: "node-a", IP: "10.0.0.5", MAC: "aa:bb:cc:dd:ee:ff", PeerCount: 3, Version: "dev"},
	}
	b, err := api.EncodeResponse(resp)
	require.NoError(t, err)
	got, err := api.DecodeResponse(b)
	require.NoError(t, err)
	require.Equal(t, resp, got)
}
