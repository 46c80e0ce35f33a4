// Package udp is a reference linkctl.Transport: one UDP socket per
// LinkInterface, grounded in the teacher's own probe-socket read loop
// (impl/dp_udp_link.go probeListener/probe) but carrying linkctl's frame
// format instead of a protobuf probe message. It exists so cmd/run.go has a
// real, runnable link-layer transport to bind — the transport contract
// itself remains an external collaborator per spec.md §1, this is just
// one concrete implementation of it.
package udp

import (
	"log/slog"
	"net"
	"net/netip"

	"github.com/meshwire/linkctl/linkctl"
)

// Link bridges one LinkInterface to a UDP socket. A peer's lladdr is the
// string form of the UDP address the first frame from it actually arrived
// from — whatever address a remote embeds in a beacon or frame header is
// discarded on the way in, since on a UDP transport the packet's own
// source is the only address worth trusting.
type Link struct {
	conn          *net.UDPConn
	ctl           *linkctl.Controller
	ifNum         int
	broadcastAddr netip.AddrPort
	log           *slog.Logger
}

// Listen opens a UDP socket bound to bindAddr and starts its read loop,
// delivering every decoded frame to ctl as ifNum's inbound traffic.
// broadcastAddr is where beacon frames (and any other frame whose flags
// mark it broadcast) are sent.
func Listen(ctl *linkctl.Controller, ifNum int, bindAddr, broadcastAddr netip.AddrPort, log *slog.Logger) (*Link, error) {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(bindAddr))
	if err != nil {
		return nil, err
	}
	l := &Link{conn: conn, ctl: ctl, ifNum: ifNum, broadcastAddr: broadcastAddr, log: log}
	go l.readLoop()
	return l, nil
}

// Send implements linkctl.Transport.
func (l *Link) Send(frame []byte) error {
	broadcast, addr, _, ok := linkctl.DecodeFrame(frame)
	if !ok {
		return nil
	}
	dest := l.broadcastAddr
	if !broadcast {
		ap, err := netip.ParseAddrPort(string(addr.Bytes()))
		if err != nil {
			return err
		}
		dest = ap
	}
	_, err := l.conn.WriteToUDPAddrPort(frame, dest)
	return err
}

// Close releases the underlying socket, ending the read loop.
func (l *Link) Close() error {
	return l.conn.Close()
}

func (l *Link) readLoop() {
	buf := make([]byte, 65535)
	for {
		n, from, err := l.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return
		}
		broadcast, _, payload, ok := linkctl.DecodeFrame(buf[:n])
		if !ok {
			l.log.Debug("dropped runt udp datagram", "from", from, "len", n)
			continue
		}
		addr := linkctl.LLAddrFromBytes([]byte(from.String()))
		frame := linkctl.EncodeFrame(broadcast, addr, append([]byte(nil), payload...))
		l.ctl.DeliverInbound(l.ifNum, frame)
	}
}
