package receipt

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
)

const base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateID builds a shareable receipt identifier: "NM" + the current
// millisecond timestamp in base36 + 5 random base36 characters, upper-cased.
// The timestamp prefix keeps ids generated in quick succession sortable; the
// random suffix makes same-millisecond collisions improbable. Uniqueness is
// probabilistic, not enforced by the store.
func GenerateID() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)

	var suffix strings.Builder
	for i := 0; i < 5; i++ {
		suffix.WriteByte(base36Chars[rand.Intn(len(base36Chars))])
	}

	return strings.ToUpper("NM" + ts + suffix.String())
}
