package cmd

import (
	"github.com/greenlighthq/greenlight/pkg/archive"
)

const defaultArchiveRoot = "./data/archives"

// NewArchiver builds the snapshot storage backend. Only the file system
// backend ships today; the locator format keeps the door open for object
// storage.
func NewArchiver(archiveURL string) archive.Archiver {
	if archiveURL == "" {
		archiveURL = defaultArchiveRoot
	}

	return archive.NewFSArchiver(archiveURL)
}
