package rtp

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/randutil"
)

var globalMathRandomGenerator = randutil.NewMathRandomGenerator()

// generateSSRC draws a uniformly random 32-bit SSRC, matching
// RFC 3550's recommendation that SSRCs be chosen randomly. Excluded
// is never checked here: callers that need to avoid a collision with
// an already-known value retry (see newLocalSsrc in ssrc_arbiter.go).
func generateSSRC() uint32 {
	return globalMathRandomGenerator.Uint32()
}

// generateInitialSequenceNumber draws a random starting point for the
// 16-bit RTP sequence counter, per RFC 3550 §8. The session increments
// before first use, so the first packet sent carries seq+1.
func generateInitialSequenceNumber() uint16 {
	return uint16(globalMathRandomGenerator.Uint32() & 0xffff)
}

// defaultCNAME synthesizes "efflux/<sessionID>@<localAddr>", the literal
// format the engine's Java ancestor used when no CNAME was configured.
func defaultCNAME(sessionID, localAddr string) string {
	return fmt.Sprintf("efflux/%s@%s", sessionID, localAddr)
}

// NewSessionID returns a fresh random identifier suitable as a Session's id
// when the caller has no naming scheme of its own.
func NewSessionID() string {
	return uuid.NewString()
}
