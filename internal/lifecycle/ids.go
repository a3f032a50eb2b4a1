package lifecycle

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

const ephemeralPrefix = "idea-"

// IDAllocator hands out ephemeral ids of the form idea-<unixms>-<seq>-<ordinal>.
// seq advances once per batch, so two batches inside the same millisecond
// still differ.
type IDAllocator struct {
	seq atomic.Uint64
}

// Batch reserves ids for n drafts stamped at now.
func (a *IDAllocator) Batch(now time.Time, n int) []string {
	seq := a.seq.Add(1)
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s%d-%d-%d", ephemeralPrefix, now.UnixMilli(), seq, i+1)
	}
	return ids
}

// IsEphemeralID reports whether id was minted by an IDAllocator rather than the store.
func IsEphemeralID(id string) bool {
	return strings.HasPrefix(id, ephemeralPrefix)
}
