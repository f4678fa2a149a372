// Package persist buffers completed conversations and flushes them to a
// durable sink in batches, shielding the conversational path from sink
// latency and outages.
package persist

import "time"

// Row is the record of one completed conversation. Created exactly once per
// session termination and never mutated afterwards; ownership passes to the
// Queue on Push.
type Row struct {
	Timestamp   time.Time
	UserID      string
	DisplayName string
	SourceTag   string
	Transcript  string
}
