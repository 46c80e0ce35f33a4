package state

import (
	"fmt"
	"regexp"
)

var namePattern, _ = regexp.Compile("^[0-9a-z._-]+$")

// NameValidator validates link and node names used in config and the CLI.
func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

// ValidateRemoteKey implements the BAD_KEY half of spec.md §4.5
// bootstrapPeer's validation: the key's derived address must be a valid
// mesh address, and must not be the local node's own key.
func ValidateRemoteKey(local, remote PublicKey) error {
	if remote == local {
		return fmt.Errorf("remote key equals local key")
	}
	if !IsMeshAddress(DeriveIP6(remote)) {
		return fmt.Errorf("remote key does not derive a valid mesh address")
	}
	return nil
}
