package linkctl

// relocate implements spec.md §4.1 "Relocation": scan newPeer's link for
// any other Peer sharing the same public key. If one exists, its switch
// slot is transplanted onto newPeer by swapping interfaces, then the old
// Peer is destroyed. The old Peer must be freed only after the swap
// (spec.md §9) — reversing the order leaks a switch slot.
func (c *Controller) relocate(newPeer *Peer) {
	l := newPeer.link
	for _, other := range l.peers {
		if other == newPeer || other.key != newPeer.key {
			continue
		}
		c.sw.SwapInterfaces(newPeer.handle, other.handle)
		other.destroy()
		return
	}
}
