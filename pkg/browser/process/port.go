package process

import (
	"fmt"
	"net"
	"strconv"
)

// probeRange bounds how far upward from the default port AllocatePort looks
// before letting the OS pick one.
const probeRange = 100

// AllocatePort picks a loopback port for a new process.
//
// An explicit port is returned only if it is free; a busy explicit port is an
// error because the server never attaches to processes it did not spawn.
// Otherwise ports are probed upward from def, then an OS-assigned port is
// used.
func AllocatePort(explicit, def int) (int, error) {
	if explicit > 0 {
		if !PortFree(explicit) {
			return 0, fmt.Errorf("port %d is already in use", explicit)
		}
		return explicit, nil
	}
	if def > 0 {
		for p := def; p < def+probeRange && p <= 65535; p++ {
			if PortFree(p) {
				return p, nil
			}
		}
	}
	return ephemeralPort()
}

// PortFree reports whether nothing is listening on 127.0.0.1:port.
func PortFree(port int) bool {
	ln, err := net.Listen("tcp", loopback(port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

func ephemeralPort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to allocate port: %w", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

func loopback(port int) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}
