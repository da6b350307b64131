// Package ingest feeds the job store from a media inventory. A scan walks
// the source tree, reconstructs canonical filenames, and writes a two-sheet
// xlsx manifest; a watcher picks up new manifests and batch-upserts the
// enqueue sheet keyed on external_key. Keeping the manifest on disk between
// the two halves gives operators a review point before anything is queued.
package ingest
