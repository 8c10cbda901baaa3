// Command composer is the curation backend CLI: neurondm ingestion, curie-id
// stamping, CSV export batches, and composer data dumps.
package main

import "os"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
