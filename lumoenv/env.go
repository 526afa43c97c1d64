// Package lumoenv assembles the environment snapshot the daemon's core
// components are constructed from: working directory, shared connection
// token, the derived AE key, machine identity, and network/port config.
package lumoenv

import (
	"crypto/sha256"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/hahatianx/lumo/lumoerr"
)

// Default ports, per spec.
const (
	DefaultUDPPort = 14514
	DefaultTCPPort = 14515
)

// Env is an immutable snapshot of the daemon's configuration, built once
// at startup and passed by value to constructors.
type Env struct {
	WorkDir       string
	Token         string
	AEKey         [32]byte
	MachineName   string
	LocalIP       net.IP
	LocalMAC      net.HardwareAddr
	UDPPort       int
	TCPPort       int
}

// Flags holds the raw command-line configuration before resolution into
// an Env. It mirrors the style of a grailbio-base main package's flag
// block: a plain struct registered against a *flag.FlagSet.
type Flags struct {
	WorkDir string
	Token   string
	UDPPort int
	TCPPort int
}

// RegisterFlags registers f's fields against fs, to be called before
// fs.Parse in main.
func RegisterFlags(fs *flag.FlagSet, f *Flags) {
	fs.StringVar(&f.WorkDir, "dir", ".", "shared working directory")
	fs.StringVar(&f.Token, "token", "", "shared connection token")
	fs.IntVar(&f.UDPPort, "udp-port", DefaultUDPPort, "UDP control port")
	fs.IntVar(&f.TCPPort, "tcp-port", DefaultTCPPort, "TCP file port")
}

// Resolve turns parsed Flags into an Env, discovering the machine's
// local address/MAC and deriving the AE key from the token.
func Resolve(f Flags) (Env, error) {
	if f.Token == "" {
		return Env{}, lumoerr.E(lumoerr.Invalid, "missing shared connection token")
	}
	abs, err := filepath.Abs(f.WorkDir)
	if err != nil {
		return Env{}, lumoerr.E(lumoerr.Invalid, "resolving working directory", err)
	}
	if fi, err := os.Stat(abs); err != nil || !fi.IsDir() {
		return Env{}, lumoerr.E(lumoerr.NotExist, "working directory does not exist", abs)
	}

	ip, mac, err := discoverInterface()
	if err != nil {
		return Env{}, err
	}

	name, err := os.Hostname()
	if err != nil {
		name = "lumo-node"
	}

	return Env{
		WorkDir:     abs,
		Token:       f.Token,
		AEKey:       sha256.Sum256([]byte(f.Token)),
		MachineName: name,
		LocalIP:     ip,
		LocalMAC:    mac,
		UDPPort:     f.UDPPort,
		TCPPort:     f.TCPPort,
	}, nil
}

// DiscPath returns the absolute path to a name under <WorkDir>/.disc.
func (e Env) DiscPath(elem ...string) string {
	return filepath.Join(append([]string{e.WorkDir, ".disc"}, elem...)...)
}

// discoverInterface implements spec.md §6.1: prefer enumerating
// interfaces for the first non-loopback RFC1918 IPv4 address that has a
// MAC, falling back to the UDP "connect to a public IP, read the local
// address" trick and mapping the result back to an interface's MAC.
func discoverInterface() (net.IP, net.HardwareAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, nil, lumoerr.E(lumoerr.Unavailable, "enumerating network interfaces", err)
	}
	for _, iface := range ifaces {
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil || ip4.IsLoopback() || !isPrivate(ip4) {
				continue
			}
			return ip4, iface.HardwareAddr, nil
		}
	}

	ip, err := fallbackLocalIP()
	if err != nil {
		return nil, nil, err
	}
	for _, iface := range ifaces {
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if ok && ipNet.IP.Equal(ip) {
				return ip, iface.HardwareAddr, nil
			}
		}
	}
	return nil, nil, lumoerr.E(lumoerr.Unavailable, "no usable network interface found")
}

func fallbackLocalIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, lumoerr.E(lumoerr.Unavailable, "discovering local address", err)
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil, lumoerr.E(lumoerr.Unavailable, "unexpected local address type")
	}
	return addr.IP, nil
}

func isPrivate(ip net.IP) bool {
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"} {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("lumoenv: invalid CIDR %q", cidr))
		}
		if block.Contains(ip) {
			return true
		}
	}
	return false
}
