package state

import "time"

// Tuning constants, all in milliseconds per spec.md §6, exposed as
// time.Duration so callers never have to re-multiply. Overridable per
// Config.Tuning field, defaulting to these values when a config omits them.
var (
	// UnresponsiveAfter is how long a peer may stay silent while Established
	// before the controller marks it Unresponsive.
	UnresponsiveAfter = time.Millisecond * 20480
	// PingAfter is how long a peer may stay silent before it is considered
	// lazy and probed.
	PingAfter = time.Millisecond * 3072
	// PingInterval is the period of the ping tick.
	PingInterval = time.Millisecond * 1024
	// PingTimeout bounds how long a single switch-ping waits for a response.
	PingTimeout = time.Millisecond * 2048
	// ForgetAfter is how long a silent incoming peer is retained before it
	// is destroyed.
	ForgetAfter = time.Millisecond * 262144
	// BeaconInterval is the period of the beacon tick on Send-mode links.
	BeaconInterval = time.Millisecond * 32768
)

// Fixed sizes of the on-wire beacon payload (spec.md §6).
const (
	BeaconPublicKeySize = 32
	BeaconVersionSize   = 4
	BeaconPasswordLen   = 16
	BeaconSize          = BeaconPublicKeySize + BeaconVersionSize + BeaconPasswordLen
)

// MeshPrefixByte is the leading byte every derived ip6 address must carry
// to be considered a valid mesh address.
const MeshPrefixByte = 0xfc

// SwitchHeaderTerminateOffset is the byte offset within a decrypted switch
// header whose value signals "terminate here" (spec.md §4.1 admission guard).
const SwitchHeaderTerminateOffset = 7

// PreEstablishedPingEvery and UnresponsivePingEvery implement the two
// independent counters-on-the-same-field rates from spec.md §9: roughly
// 6/7 of pre-Established frames provoke an opportunistic switch-ping, and
// 1/8 of ping-tick visits to an Unresponsive peer actually send a ping.
const (
	PreEstablishedPingEvery = 7
	UnresponsivePingEvery   = 8
)
