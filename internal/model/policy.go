// Package model defines the entities shared by the retrieval, cache, and
// workflow layers: policies, chunks, sessions, chat turns, and evidence.
package model

// PolicyRecord is a government grant/policy item. Immutable after ingestion.
type PolicyRecord struct {
	ID                 int64
	Name               string
	Region             string
	Category           string
	Overview           string
	ApplyTarget        string
	SupportDescription string
	URL                string

	// Extras holds ingestion-specific attributes not otherwise modeled
	// (contact, deadline, and similar free-form fields).
	Extras map[string]string
}

// DocumentChunk is a text segment of a PolicyRecord. Immutable.
type DocumentChunk struct {
	ID       string
	PolicyID int64
	Index    int
	Content  string
	DocType  string
	Vector   []float32
}
