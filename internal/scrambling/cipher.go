// Package scrambling provides the keyed block cipher the scrambler stage
// drives, standing in for the out-of-scope DVB-CSA2/AES primitive named in
// spec.md §1. It is backed by golang.org/x/crypto/chacha20, a stream cipher
// keyed the same way the scrambler's control words are: a fixed-size key
// plus a parity bit selecting which of two in-flight control words is active.
package scrambling

import (
	"fmt"

	"golang.org/x/crypto/chacha20"
)

// ControlWordSize is the fixed size, in bytes, of one control word. DVB-CSA2
// control words are 8 bytes; chacha20 needs a 32-byte key, so a CW is
// expanded into a key by repetition, keeping the CW itself the unit the
// scrambler schedules and logs.
const ControlWordSize = 8

// nonceSize is chacha20's IETF nonce size; fixed to zero since the scrambler
// re-keys per crypto-period rather than per packet.
const nonceSize = chacha20.NonceSize

// ControlWord is the scrambler's secret key for one crypto-period.
type ControlWord [ControlWordSize]byte

// Cipher scrambles and descrambles packet payloads in place under the
// currently keyed control word and parity.
type Cipher struct {
	cw     ControlWord
	parity byte
}

// NewCipher creates an unkeyed cipher; Rekey must be called before Scramble.
func NewCipher() *Cipher {
	return &Cipher{}
}

// Rekey installs cw as the active control word, tagged with parity (0 or 1,
// even/odd per the crypto-period number, spec.md §4.5.1).
func (c *Cipher) Rekey(cw ControlWord, parity byte) {
	c.cw = cw
	c.parity = parity & 1
}

// Parity returns the parity tag of the currently keyed control word.
func (c *Cipher) Parity() byte { return c.parity }

// ControlWord returns the currently keyed control word.
func (c *Cipher) ControlWord() ControlWord { return c.cw }

// Scramble XOR-encrypts payload in place under the active control word.
// Because chacha20 is its own inverse under XOR, the same call also
// descrambles (spec.md §8 round-trip property: scrambling then descrambling
// with the same CW schedule is the identity).
func (c *Cipher) Scramble(payload []byte) error {
	key := expandKey(c.cw)
	stream, err := chacha20.NewUnauthenticatedCipher(key[:], make([]byte, nonceSize))
	if err != nil {
		return fmt.Errorf("scrambling: new cipher: %w", err)
	}
	stream.XORKeyStream(payload, payload)
	return nil
}

// expandKey repeats the 8-byte control word to fill chacha20's 32-byte key.
func expandKey(cw ControlWord) [chacha20.KeySize]byte {
	var key [chacha20.KeySize]byte
	for i := range key {
		key[i] = cw[i%ControlWordSize]
	}
	return key
}
