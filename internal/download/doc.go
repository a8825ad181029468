// Package download implements the download orchestration core: a
// bounded-concurrency job queue that runs one yt-dlp process per job, turns
// its output into progress events, supports cancellation of pending and
// active jobs, and publishes every lifecycle transition on an event bus.
//
// All queue state is owned by a single coordinator goroutine. Operations and
// runner callbacks are executed there as closures, so observers attached to
// the bus run on that goroutine too and must not block or call back into the
// Service synchronously.
package download
