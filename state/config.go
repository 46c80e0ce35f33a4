package state

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// BeaconMode mirrors spec.md §3's LinkInterface.beaconMode; Send implies
// Accept.
type BeaconMode int

const (
	BeaconOff BeaconMode = iota
	BeaconAccept
	BeaconSend
)

func (m BeaconMode) String() string {
	switch m {
	case BeaconOff:
		return "off"
	case BeaconAccept:
		return "accept"
	case BeaconSend:
		return "send"
	default:
		return "unknown"
	}
}

func ParseBeaconMode(s string) (BeaconMode, error) {
	switch s {
	case "off", "":
		return BeaconOff, nil
	case "accept":
		return BeaconAccept, nil
	case "send":
		return BeaconSend, nil
	default:
		return BeaconOff, fmt.Errorf("%q is not a valid beacon mode (off|accept|send)", s)
	}
}

func (m BeaconMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *BeaconMode) UnmarshalText(text []byte) error {
	parsed, err := ParseBeaconMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// LinkConfig names one link-layer transport the controller should register
// a LinkInterface for at startup. The transport itself is wired by the
// caller (cmd/run.go); this config only names it, its initial beacon mode,
// and the UDP bind/broadcast addresses cmd/run.go uses when it binds the
// transport/udp reference transport to this link.
type LinkConfig struct {
	Name       string     `yaml:"name"`
	BeaconMode BeaconMode `yaml:"beacon_mode,omitempty"`
	Bind       string     `yaml:"bind"`
	Broadcast  string     `yaml:"broadcast,omitempty"`
}

// Tuning carries optional overrides of the defaults in constants.go. A nil
// field means "use the package default".
type Tuning struct {
	UnresponsiveAfter *time.Duration `yaml:"unresponsive_after,omitempty"`
	PingAfter         *time.Duration `yaml:"ping_after,omitempty"`
	PingInterval      *time.Duration `yaml:"ping_interval,omitempty"`
	PingTimeout       *time.Duration `yaml:"ping_timeout,omitempty"`
	ForgetAfter       *time.Duration `yaml:"forget_after,omitempty"`
	BeaconInterval    *time.Duration `yaml:"beacon_interval,omitempty"`
}

// Resolve overlays t atop the package defaults, returning a fully
// populated Tuning with no nil fields.
func (t Tuning) Resolve() Tuning {
	resolved := Tuning{
		UnresponsiveAfter: &UnresponsiveAfter,
		PingAfter:         &PingAfter,
		PingInterval:      &PingInterval,
		PingTimeout:       &PingTimeout,
		ForgetAfter:       &ForgetAfter,
		BeaconInterval:    &BeaconInterval,
	}
	if t.UnresponsiveAfter != nil {
		resolved.UnresponsiveAfter = t.UnresponsiveAfter
	}
	if t.PingAfter != nil {
		resolved.PingAfter = t.PingAfter
	}
	if t.PingInterval != nil {
		resolved.PingInterval = t.PingInterval
	}
	if t.PingTimeout != nil {
		resolved.PingTimeout = t.PingTimeout
	}
	if t.ForgetAfter != nil {
		resolved.ForgetAfter = t.ForgetAfter
	}
	if t.BeaconInterval != nil {
		resolved.BeaconInterval = t.BeaconInterval
	}
	return resolved
}

// Config is the local node's on-disk configuration.
type Config struct {
	// Id is a human-readable label for this node, used in logging and in
	// the default admin socket path.
	Id string `yaml:"id"`
	// Key is the node's long-term private key; its public half is
	// advertised in every beacon (spec.md §3 Controller.beacon).
	Key    PrivateKey   `yaml:"key"`
	Links  []LinkConfig `yaml:"links,omitempty"`
	Tuning Tuning       `yaml:"tuning,omitempty"`
	// Control is the path of the admin IPC socket a running controller
	// listens on and `linkctl` CLI subcommands dial into (cmd/ipc.go).
	// Defaults to /tmp/linkctl-<id>.sock when empty.
	Control string `yaml:"control,omitempty"`
}

// LoadConfig reads and decodes a Config from path.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig encodes cfg and writes it to path.
func SaveConfig(path string, cfg Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, raw, 0600)
}
