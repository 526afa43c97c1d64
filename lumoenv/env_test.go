package lumoenv_test

import (
	"flag"
	"testing"

	"github.com/hahatianx/lumo/lumoenv"
	"github.com/stretchr/testify/require"
)

func TestResolveRequiresToken(t *testing.T) {
	_, err := lumoenv.Resolve(lumoenv.Flags{WorkDir: t.TempDir()})
	require.Error(t, err)
}

func TestResolveDerivesAEKey(t *testing.T) {
	env, err := lumoenv.Resolve(lumoenv.Flags{WorkDir: t.TempDir(), Token: "s3cr3t", UDPPort: lumoenv.DefaultUDPPort, TCPPort: lumoenv.DefaultTCPPort})
	if err != nil {
		t.Skipf("no usable network interface in this sandbox: %v", err)
	}
	require.NotEqual(t, [32]byte{}, env.AEKey)
	require.Equal(t, lumoenv.DefaultUDPPort, env.UDPPort)
}

func TestDiscPath(t *testing.T) {
	env := lumoenv.Env{WorkDir: "/tmp/work"}
	require.Equal(t, "/tmp/work/.disc/lumo_index", env.DiscPath("lumo_index"))
}

func TestRegisterFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var f lumoenv.Flags
	lumoenv.RegisterFlags(fs, &f)
	require.NoError(t, fs.Parse([]string{"-dir", "/tmp", "-token", "abc"}))
	require.Equal(t, "/tmp", f.WorkDir)
	require.Equal(t, "abc", f.Token)
}
