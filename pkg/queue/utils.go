package queue

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

func qualifiedStructName(v any) string {
	s := fmt.Sprintf("%T", v)
	s = strings.TrimLeft(s, "*")

	return s
}

// jittered adds a uniform random duration in [0, jitter) to base.
func jittered(base, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return base
	}
	return base + rand.N(jitter)
}
