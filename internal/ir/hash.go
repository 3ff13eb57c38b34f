package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/roach88/callchain/internal/engine"
)

// Domain prefixes for content-addressed identity. The version suffix allows
// the algorithm to change without colliding with old hashes.
const (
	DomainDefinition = "callchain/definition/v1"
	DomainValue      = "callchain/value/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
// The null separator keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Definition describes a chain definition as IR: one object per call with
// its method, snapshotted arguments and, for block-closing calls, the
// block body.
func Definition(calls []engine.CallInfo) IRArray {
	out := make(IRArray, len(calls))
	for i, c := range calls {
		obj := IRObject{
			"method": IRString(c.Method),
			"args":   SnapshotArgs(c.Args),
		}
		if c.Subchain != nil {
			obj["subchain"] = Definition(c.Subchain)
		}
		out[i] = obj
	}
	return out
}

// DefinitionHash returns the content-addressed id of a chain definition.
// Two chains that queue the same calls with the same arguments hash
// equally, whichever registry built them.
func DefinitionHash(calls []engine.CallInfo) (string, error) {
	canonical, err := MarshalCanonical(Definition(calls))
	if err != nil {
		return "", fmt.Errorf("DefinitionHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDefinition, canonical), nil
}

// ValueHash returns the content-addressed id of a value snapshot.
func ValueHash(v IRValue) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("ValueHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainValue, canonical), nil
}
