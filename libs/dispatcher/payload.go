package dispatcher

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/solsub/scheduler/libs/store"
)

// Opcode distinguishes a payment tick from a reminder tick on the wire.
type Opcode byte

const (
	OpcodePayment  Opcode = 0x00
	OpcodeReminder Opcode = 0x01
)

const protocolTag byte = 0x01

// EncodePayload builds the canonical, wire-stable byte layout signed by the
// Signer and verified on-chain:
//
//	protocol tag   (1 byte,  0x01)
//	opcode         (1 byte,  0x00=Payment, 0x01=Reminder)
//	sub_id              (2-byte big-endian length, then UTF-8 bytes)
//	settlement_contract (2-byte big-endian length, then UTF-8 bytes)
//	token_mint          (2-byte big-endian length, then UTF-8 bytes)
//	amount_hint    (8 bytes, big-endian)
//	interval_seconds (8 bytes, big-endian)
//	nonce          (8 bytes, derived — see deriveNonce)
//
// This layout must never change; every settlement contract this service
// talks to is compiled against it.
func EncodePayload(sub *store.Subscription, opcode Opcode, attempt uint64) []byte {
	buf := make([]byte, 0, 2+1+1+
		2+len(sub.SubID)+
		2+len(sub.SettlementContract)+
		2+len(sub.TokenMint)+
		8+8+8)

	buf = append(buf, protocolTag, byte(opcode))
	buf = appendLengthPrefixed(buf, sub.SubID)
	buf = appendLengthPrefixed(buf, sub.SettlementContract)
	buf = appendLengthPrefixed(buf, sub.TokenMint)
	buf = appendUint64(buf, sub.AmountHint)
	buf = appendUint64(buf, sub.IntervalSeconds)

	nonce := deriveNonce(sub.SubID, attempt, opcode)
	buf = append(buf, nonce[:]...)

	return buf
}

func appendLengthPrefixed(buf []byte, s string) []byte {
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(s)))
	buf = append(buf, length[:]...)
	return append(buf, s...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

// deriveNonce produces an 8-byte value deterministic in (subID, attempt,
// opcode). The dispatcher passes trigger_count+1 as attempt, so each payment
// period's signed payload differs even when amount_hint/interval_seconds are
// unchanged, and a signature from period k is not valid for period k+1.
// Retries within one period share the same nonce, since trigger_count only
// advances on success.
func deriveNonce(subID string, attempt uint64, opcode Opcode) [8]byte {
	h := sha256.New()
	h.Write([]byte(subID))
	var attemptBytes [8]byte
	binary.BigEndian.PutUint64(attemptBytes[:], attempt)
	h.Write(attemptBytes[:])
	h.Write([]byte{byte(opcode)})

	sum := h.Sum(nil)
	var nonce [8]byte
	copy(nonce[:], sum[:8])
	return nonce
}
