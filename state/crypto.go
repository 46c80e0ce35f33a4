package state

import (
	"go.step.sm/crypto/x25519"
	"golang.org/x/crypto/blake2s"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
	"net/netip"
)

// PrivateKey and PublicKey are the controller's long-term identity keys,
// sized like the Noise static keypair the external session engine
// ultimately authenticates with.
type PrivateKey [32]byte
type PublicKey [32]byte

// GenerateKey produces a fresh long-term private key. Used for the local
// node identity and, in tests, for throwaway peer identities.
func GenerateKey() PrivateKey {
	key, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		panic(err)
	}
	return PrivateKey(key)
}

// Pubkey derives the public key from a private key.
func (k PrivateKey) Pubkey() PublicKey {
	val, err := x25519.PrivateKey(k[:]).PublicKey()
	if err != nil {
		panic(err)
	}
	return PublicKey(val)
}

// DeriveIP6 implements the address derivation of spec.md §6: ip6 is the
// mesh-prefixed half of the double hash of the public key. The "platform's
// defined double hash" is blake2s-256, matching the hash WireGuard's own
// key derivation already pulls in via golang.org/x/crypto.
func DeriveIP6(key PublicKey) netip.Addr {
	h1 := blake2s.Sum256(key[:])
	h2 := blake2s.Sum256(h1[:])
	var addr [16]byte
	addr[0] = MeshPrefixByte
	copy(addr[1:], h2[:15])
	return netip.AddrFrom16(addr)
}

// IsMeshAddress reports whether addr begins with the mesh prefix byte.
func IsMeshAddress(addr netip.Addr) bool {
	if !addr.Is6() {
		return false
	}
	b := addr.As16()
	return b[0] == MeshPrefixByte
}
