package cmd

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/meshwire/linkctl/linkctl"
	"github.com/meshwire/linkctl/state"
)

// socketPath resolves the admin IPC socket a running controller listens on
// and the CLI subcommands dial, defaulting it off the node id the same way
// the teacher derives its own per-interface IPC path from the tunnel name.
func socketPath(cfg state.Config) string {
	if cfg.Control != "" {
		return cfg.Control
	}
	return fmt.Sprintf("/tmp/linkctl-%s.sock", cfg.Id)
}

// serveIPC listens on sockPath and answers one line-delimited admin command
// per connection against ctl's Admin API (spec.md §6), in the
// request/response shape of the teacher's core/ipc.go (write the command,
// flush, read the reply up to a trailing NUL byte) but over a plain Unix
// domain socket rather than a UAPI-style device handle.
func serveIPC(ctl *linkctl.Controller, sockPath string, log *slog.Logger) error {
	_ = os.Remove(sockPath)
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		return fmt.Errorf("listen on admin socket: %w", err)
	}
	go func() {
		<-ctl.Env().Context.Done()
		ln.Close()
		os.Remove(sockPath)
	}()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handleIPCConn(ctl, conn, log)
		}
	}()
	return nil
}

func handleIPCConn(ctl *linkctl.Controller, conn net.Conn, log *slog.Logger) {
	defer conn.Close()
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	line, err := rw.ReadString('\n')
	if err != nil && err != io.EOF {
		return
	}

	reply, err := dispatchIPC(ctl, strings.TrimSpace(line))
	if err != nil {
		reply = fmt.Sprintf("error: %v", err)
	}
	rw.WriteString(reply)
	rw.WriteByte(0)
	if err := rw.Flush(); err != nil {
		log.Debug("admin ipc write failed", "error", err)
	}
}

// dispatchIPC parses and runs one admin command line. Commands mirror
// spec.md §6's Admin API one-to-one: iface-new, beacon, bootstrap,
// disconnect, stats.
func dispatchIPC(ctl *linkctl.Controller, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty command")
	}

	switch fields[0] {
	case "iface-new":
		if len(fields) != 3 {
			return "", fmt.Errorf("usage: iface-new <name> <off|accept|send>")
		}
		mode, err := state.ParseBeaconMode(fields[2])
		if err != nil {
			return "", err
		}
		ifNum, err := ctl.NewIface(fields[1], mode, state.NewScope(nil))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("ifNum=%d", ifNum), nil

	case "beacon":
		if len(fields) != 3 {
			return "", fmt.Errorf("usage: beacon <ifNum> <off|accept|send>")
		}
		ifNum, err := strconv.Atoi(fields[1])
		if err != nil {
			return "", fmt.Errorf("bad ifNum: %w", err)
		}
		mode, err := state.ParseBeaconMode(fields[2])
		if err != nil {
			return "", err
		}
		if err := ctl.BeaconState(ifNum, mode); err != nil {
			return "", err
		}
		return "ok", nil

	case "bootstrap":
		if len(fields) != 5 {
			return "", fmt.Errorf("usage: bootstrap <ifNum> <pubkey-b64> <lladdr> <password-b64>")
		}
		ifNum, err := strconv.Atoi(fields[1])
		if err != nil {
			return "", fmt.Errorf("bad ifNum: %w", err)
		}
		var key state.PublicKey
		if err := key.UnmarshalText([]byte(fields[2])); err != nil {
			return "", fmt.Errorf("bad pubkey: %w", err)
		}
		password, err := decodePassword(fields[4])
		if err != nil {
			return "", fmt.Errorf("bad password: %w", err)
		}
		if err := ctl.BootstrapPeer(ifNum, key, linkctl.LLAddr(fields[3]), password, state.NewScope(nil)); err != nil {
			return "", err
		}
		return "ok", nil

	case "disconnect":
		if len(fields) != 2 {
			return "", fmt.Errorf("usage: disconnect <pubkey-b64>")
		}
		var key state.PublicKey
		if err := key.UnmarshalText([]byte(fields[1])); err != nil {
			return "", fmt.Errorf("bad pubkey: %w", err)
		}
		if err := ctl.DisconnectPeer(key); err != nil {
			return "", err
		}
		return "ok", nil

	case "stats":
		stats, err := ctl.GetPeerStats()
		if err != nil {
			return "", err
		}
		return formatPeerStats(stats), nil

	default:
		return "", fmt.Errorf("unknown command %q", fields[0])
	}
}

func formatPeerStats(stats []linkctl.PeerStats) string {
	if len(stats) == 0 {
		return "(no peers)"
	}
	sb := strings.Builder{}
	for _, s := range stats {
		pub, _ := s.Key.MarshalText()
		fmt.Fprintf(&sb, "%s if=%d state=%s ip6=%s in=%v user=%q key=%s bytesIn=%d bytesOut=%d dup=%d lost=%d oor=%d\n",
			s.LLAddr, s.IfNum, s.State, s.IP6, s.IsIncoming, s.User, pub,
			s.BytesIn, s.BytesOut, s.Duplicates, s.LostPackets, s.ReceivedOutOfRange)
	}
	return sb.String()
}

// ipcRequest dials sockPath, sends cmd, and returns the reply with its
// trailing NUL terminator stripped.
func ipcRequest(sockPath, cmdLine string) (string, error) {
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		return "", fmt.Errorf("dial admin socket %s: %w", sockPath, err)
	}
	defer conn.Close()

	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	if _, err := rw.WriteString(cmdLine + "\n"); err != nil {
		return "", err
	}
	if err := rw.Flush(); err != nil {
		return "", err
	}

	reply, err := rw.ReadString(0)
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSuffix(reply, "\x00"), nil
}

func encodePassword(p []byte) string { return base64.StdEncoding.EncodeToString(p) }

func decodePassword(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
