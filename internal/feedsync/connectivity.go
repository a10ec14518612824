package feedsync

import (
	"sync/atomic"
)

// Connectivity reports the current network state.
type Connectivity interface {
	Connected() bool
	Unmetered() bool
}

// StaticConnectivity is a Connectivity whose state is set explicitly, from
// configuration or by an operator.
type StaticConnectivity struct {
	connected atomic.Bool
	unmetered atomic.Bool
}

// NewStaticConnectivity returns a StaticConnectivity with the given state.
func NewStaticConnectivity(connected, unmetered bool) *StaticConnectivity {
	c := &StaticConnectivity{}
	c.Set(connected, unmetered)
	return c
}

// Set replaces the network state.
func (c *StaticConnectivity) Set(connected, unmetered bool) {
	c.connected.Store(connected)
	c.unmetered.Store(unmetered)
}

func (c *StaticConnectivity) Connected() bool { return c.connected.Load() }
func (c *StaticConnectivity) Unmetered() bool { return c.unmetered.Load() }
