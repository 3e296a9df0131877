package singleinstance

import (
	"os"
	"strconv"
)

const (
	defaultPortStart = 49600
	defaultPortEnd   = 49650
)

// getPortRange returns the inclusive loopback port range shared by the
// resident and trigger clients. SINGLEINSTANCE_PORT_START and
// SINGLEINSTANCE_PORT_END override the defaults; the result is clamped to
// [1024, 65535].
func getPortRange() (int, int) {
	start := envPort("SINGLEINSTANCE_PORT_START", defaultPortStart)
	end := envPort("SINGLEINSTANCE_PORT_END", defaultPortEnd)
	start = max(start, 1024)
	end = min(end, 65535)
	if end < start {
		start, end = end, start
	}
	return start, end
}

func envPort(name string, def int) int {
	n, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return def
	}
	return n
}

// PortRange exposes the effective port range for startup logging.
func PortRange() (int, int) { return getPortRange() }
