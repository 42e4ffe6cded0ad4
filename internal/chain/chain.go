// Package chain implements the hash-chain primitive shared by all three
// append-only streams (claims, executions, witness). It is pure — no I/O —
// so it can be reused identically by the live append path and by the
// integrity verifier that re-checks entries already on disk.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/agenttrust/agenttrust/internal/canonical"
)

// ErrBrokenChain names a chain break. VerifyChain does not return it; it
// reports a break through VerifyResult (Valid false, BrokenAt, Reason).
var ErrBrokenChain = errors.New("chain: broken at entry")

// Hashable is implemented by any entry type that can be hash-chained: a
// header exposing its own hash, the previous entry's hash, and the payload
// to hash over (the entry's JSON-marshalable representation minus the hash
// field itself).
type Hashable interface {
	// HashInput returns the value to canonicalize and hash. Implementations
	// must omit their own Hash field — the chain would otherwise be
	// self-referential.
	HashInput() any
	GetHash() string
	GetPrevHash() string
}

// HashEntry computes SHA-256(canonical(e.HashInput())) as lowercase hex.
func HashEntry(e Hashable) (string, error) {
	data, err := canonical.Marshal(e.HashInput())
	if err != nil {
		return "", fmt.Errorf("chain: canonicalizing entry: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyEntryHash recomputes e's hash and compares it to the stored value.
func VerifyEntryHash(e Hashable) (bool, error) {
	expected, err := HashEntry(e)
	if err != nil {
		return false, err
	}
	return expected == e.GetHash(), nil
}

// VerifyResult is the outcome of VerifyChain.
type VerifyResult struct {
	Valid    bool
	BrokenAt int // index into the sequence, only meaningful if !Valid
	Reason   string
}

// VerifyChain walks seq in order and checks invariants (1)-(3) from the
// data model: each entry's hash matches its recomputed hash, and each
// entry's prevHash matches its predecessor's hash (the first entry's
// prevHash is compared against expectedGenesisPrevHash, normally "").
func VerifyChain(seq []Hashable, expectedGenesisPrevHash string) (VerifyResult, error) {
	for i, e := range seq {
		ok, err := VerifyEntryHash(e)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("chain: verifying entry %d: %w", i, err)
		}
		if !ok {
			return VerifyResult{Valid: false, BrokenAt: i, Reason: "hash mismatch"}, nil
		}

		if i == 0 {
			if e.GetPrevHash() != expectedGenesisPrevHash {
				return VerifyResult{Valid: false, BrokenAt: 0, Reason: "first entry prevHash mismatch"}, nil
			}
			continue
		}

		if e.GetPrevHash() != seq[i-1].GetHash() {
			return VerifyResult{Valid: false, BrokenAt: i, Reason: "chain linkage broken"}, nil
		}
	}

	return VerifyResult{Valid: true}, nil
}
