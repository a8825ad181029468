// Package platform contains OS integration and external tooling glue:
// destination paths and filename sanitization, process-group termination,
// and playlist extraction via the yt-dlp CLI with an optional native fallback.
package platform
