//go:build !linux && !windows

package network

import "net"

// ReuseAddrListenConfig returns a plain listen config on this platform.
func ReuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
