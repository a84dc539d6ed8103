package ids

import (
	"fmt"
	"strconv"
	"strings"
)

const itemPrefix = "I"

// ItemID formats the n-th item entity id.
func ItemID(n uint64) string {
	return fmt.Sprintf("%s%06d", itemPrefix, n)
}

func ParseItemID(id string) (uint64, bool) {
	return ParseUintAfterPrefix(itemPrefix, id)
}

func MaxU64(a, b uint64) uint64 {
	if a >= b {
		return a
	}
	return b
}

func ParseUintAfterPrefix(prefix, id string) (uint64, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.ParseUint(id[len(prefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
