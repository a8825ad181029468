package model

// Package model defines domain data structures used across the app: job
// descriptors and runtime job records, playlist entities produced by
// extraction, and the job status enum with its allowed transitions.
