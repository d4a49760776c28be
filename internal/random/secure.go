// Package random provides cryptographically secure transaction ID minting
// for the upstream forwarders. Never use math/rand here: a predictable
// transaction ID lets an off-path attacker spoof upstream responses.
package random

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// TransactionID generates a cryptographically random 16-bit transaction ID,
// per §4.4 step 1 ("mint a fresh 16-bit id (random)").
func TransactionID() uint16 {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("random: crypto/rand failed: %v", err))
	}
	return binary.BigEndian.Uint16(buf[:])
}
