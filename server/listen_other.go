//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package server

import "net"

// listenConfig ignores reusePort where SO_REUSEPORT is unavailable.
func listenConfig(reusePort bool) net.ListenConfig {
	return net.ListenConfig{}
}
