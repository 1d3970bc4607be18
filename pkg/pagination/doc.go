// Package pagination drives page-by-page loading of the news feed.
//
// A Driver is the consumer-side state machine behind an infinite list: it
// keeps the current page, the last known page count and the articles loaded
// so far, and asks the fetch orchestrator for at most one page at a time.
// A cache-hit result reports an unknown page count; the Driver keeps the
// previous value in that case.
//
// Example usage:
//
//	c, _ := client.New(client.DefaultConfig(tr))
//	d := pagination.NewDriver(c, pagination.DefaultDriverConfig())
//	defer d.Dispose()
//
//	if _, err := d.LoadNext(ctx); err != nil {
//	    // render d.Snapshot().Err with a retry button that calls d.Retry
//	}
//
// BatchFetcher warms a range of pages through the same orchestrator with a
// bounded worker pool, for prefetching or offline reading.
package pagination
