// Command reelpipe is the single binary for the media processing pipeline:
// stage workers, the all-in-one runner, inventory ingestion, and queue
// administration.
package main
