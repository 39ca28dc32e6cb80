package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Identity is what the pipeline knows about an anonymous caller.
type Identity struct {
	IP          string
	Fingerprint string
}

// VoterKey derives the key that deduplicates helpful votes. A client
// fingerprint is preferred so readers behind a shared address are told
// apart; the IP is the fallback.
func (i Identity) VoterKey() string {
	var material string
	if fp := strings.TrimSpace(i.Fingerprint); fp != "" {
		material = "fp:" + fp
	} else {
		material = "ip:" + i.IP
	}
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}
