package admin

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/solsub/scheduler/libs/chainrpc"
	"go.uber.org/zap"
)

// withdrawOpcode distinguishes a native-asset withdrawal from a
// token-mint withdrawal on the wire, the same way dispatcher.Opcode
// distinguishes payment from reminder ticks. Kept local to admin rather
// than shared with dispatcher.Opcode because the two payload shapes never
// appear on the same wire frame and admin has no reason to depend on
// dispatcher.
type withdrawOpcode byte

const (
	withdrawOpcodeSOL   withdrawOpcode = 0x10
	withdrawOpcodeToken withdrawOpcode = 0x11
)

const withdrawProtocolTag byte = 0x01

// AdminWithdrawSOL builds, signs, and submits a transfer of the service's
// own native balance to destination. It never touches the subscription
// store.
func (s *Service) AdminWithdrawSOL(ctx context.Context, caller, destination string, amount uint64) (string, error) {
	if err := s.requireAdmin(caller); err != nil {
		return "", err
	}
	return s.withdraw(ctx, caller, withdrawOpcodeSOL, destination, "", amount)
}

// AdminWithdrawToken builds, signs, and submits a transfer of the
// service's own balance of tokenMint to destination.
func (s *Service) AdminWithdrawToken(ctx context.Context, caller, destination, tokenMint string, amount uint64) (string, error) {
	if err := s.requireAdmin(caller); err != nil {
		return "", err
	}
	return s.withdraw(ctx, caller, withdrawOpcodeToken, destination, tokenMint, amount)
}

func (s *Service) withdraw(ctx context.Context, caller string, opcode withdrawOpcode, destination, tokenMint string, amount uint64) (string, error) {
	start := time.Now()
	payload := encodeWithdrawPayload(opcode, destination, tokenMint, amount)

	sig, err := s.signer.Sign(ctx, payload)
	if err != nil {
		s.logger.Error("admin withdraw: signing failed", zap.Error(err), callerField(caller))
		return "", fmt.Errorf("admin: withdraw signing failed: %w", err)
	}

	raw := make([]byte, 0, len(payload)+64)
	raw = append(raw, payload...)
	raw = append(raw, sig[:]...)
	signedTx := chainrpc.EncodeTransaction(raw)

	txID, err := s.rpc.SendTransaction(ctx, signedTx)
	if err != nil {
		s.logger.Error("admin withdraw: submit failed",
			zap.Error(err), zap.String("destination", destination), zap.Uint64("amount", amount),
			zap.Duration("duration", time.Since(start)), callerField(caller))
		return "", fmt.Errorf("admin: withdraw submit failed: %w", err)
	}

	s.logger.Info("admin withdraw submitted",
		zap.String("tx_id", txID), zap.String("destination", destination), zap.Uint64("amount", amount),
		zap.String("token_mint", tokenMint), zap.Duration("duration", time.Since(start)), callerField(caller))
	return txID, nil
}

func encodeWithdrawPayload(opcode withdrawOpcode, destination, tokenMint string, amount uint64) []byte {
	buf := make([]byte, 0, 2+1+2+len(destination)+2+len(tokenMint)+8+8)
	buf = append(buf, withdrawProtocolTag, byte(opcode))
	buf = appendLengthPrefixed(buf, destination)
	buf = appendLengthPrefixed(buf, tokenMint)
	buf = appendUint64(buf, amount)

	nonce := deriveWithdrawNonce(destination, tokenMint, amount)
	buf = append(buf, nonce[:]...)
	return buf
}

func appendLengthPrefixed(buf []byte, v string) []byte {
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(v)))
	buf = append(buf, length[:]...)
	return append(buf, v...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

// deriveWithdrawNonce ties the signed payload to the instant it was built,
// so replaying an old withdraw signature against a settlement contract
// that tracks nonces fails. Unlike dispatcher's per-subscription attempt
// counter, admin withdrawals have no natural monotonic counter, so the
// wall-clock timestamp stands in for one.
func deriveWithdrawNonce(destination, tokenMint string, amount uint64) [8]byte {
	h := sha256.New()
	h.Write([]byte(destination))
	h.Write([]byte(tokenMint))
	var amountBytes [8]byte
	binary.BigEndian.PutUint64(amountBytes[:], amount)
	h.Write(amountBytes[:])
	var tsBytes [8]byte
	binary.BigEndian.PutUint64(tsBytes[:], uint64(time.Now().UnixNano()))
	h.Write(tsBytes[:])

	sum := h.Sum(nil)
	var nonce [8]byte
	copy(nonce[:], sum[:8])
	return nonce
}
