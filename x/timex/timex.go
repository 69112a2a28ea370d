// Package timex carries the shared timestamp convention: bus payloads and
// published readings carry Unix milliseconds.
package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }
