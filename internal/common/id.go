package common

import (
	"github.com/google/uuid"
)

// NewPostingID generates a unique canonical posting ID with the "post_" prefix
// Format: post_<uuid>
func NewPostingID() string {
	return "post_" + uuid.New().String()
}

// NewSourceRecordID generates a unique provenance record ID with the "src_" prefix
// Format: src_<uuid>
func NewSourceRecordID() string {
	return "src_" + uuid.New().String()
}

// NewRunID generates a unique ingestion run ID with the "run_" prefix
// Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}
