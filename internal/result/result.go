// Package result builds the final ranking artefact for an ended session,
// obtains a signature for it from the external signing service and hands it
// to the contract relay.
package result

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/tourneyhub/gamecore/internal/engine"
)

const addressLen = 20

// Result is the immutable outcome of one session. SignedPayload stays nil on
// degraded completions; SignerErr then carries the operator-visible cause.
type Result struct {
	SessionID    string    `json:"session_id"`
	TournamentID string    `json:"tournament_id"`
	Kind         string    `json:"game_type"`
	Podium       []string  `json:"podium"`
	Reason       string    `json:"reason,omitempty"`
	EndedAt      time.Time `json:"ended_at"`

	SignedPayload []byte `json:"signed_payload,omitempty"`
	Submitted     bool   `json:"submitted"`
	SignerErr     string `json:"signer_error,omitempty"`
}

// Podium orders the seats' player ids best first. len(ranking) must equal
// len(players); the ranking comes straight from the engine.
func Podium(players []string, ranking []int) []string {
	out := make([]string, 0, len(players))
	for _, seat := range ranking {
		out = append(out, players[seat])
	}
	return out
}

// Pack serialises the result fields canonically for signing: each field is
// length-prefixed (4 bytes, big endian) and the order is fixed. Hex player
// addresses become raw bytes; synthetic Bot_k ids become zero-padded
// address-width bytes with the bot number in the final byte.
func Pack(tournamentID string, podium []string, kind engine.Kind, sessionID string) []byte {
	var buf []byte
	appendField := func(b []byte) {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(b)))
		buf = append(buf, n[:]...)
		buf = append(buf, b...)
	}

	appendField([]byte(tournamentID))
	for _, player := range podium {
		appendField(playerBytes(player))
	}
	appendField([]byte(kind))
	appendField([]byte(sessionID))
	return buf
}

// playerBytes converts a podium entry to its raw byte form.
func playerBytes(player string) []byte {
	if k, ok := botNumber(player); ok {
		b := make([]byte, addressLen)
		b[addressLen-1] = byte(k)
		return b
	}
	hexPart := strings.TrimPrefix(player, "0x")
	if raw, err := hex.DecodeString(hexPart); err == nil && len(raw) == addressLen {
		return raw
	}
	// Not an address: sign over the literal id.
	return []byte(player)
}

// BotID returns the deterministic synthetic id for bot seat number k
// (1-based).
func BotID(k int) string {
	return "Bot_" + strconv.Itoa(k)
}

// IsBot reports whether a player id is a synthetic bot id.
func IsBot(player string) bool {
	_, ok := botNumber(player)
	return ok
}

func botNumber(player string) (int, bool) {
	rest, found := strings.CutPrefix(player, "Bot_")
	if !found {
		return 0, false
	}
	k, err := strconv.Atoi(rest)
	if err != nil || k < 1 {
		return 0, false
	}
	return k, true
}
