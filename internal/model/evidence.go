package model

import "fmt"

// EvidenceType discriminates the two Evidence variants.
type EvidenceType string

const (
	EvidenceInternal EvidenceType = "internal"
	EvidenceWeb      EvidenceType = "web"
)

// Evidence is a tagged union of internal (policy chunk) and web evidence.
// Only the fields relevant to Type are populated; this keeps wire
// marshaling trivial instead of modeling a Go interface per variant.
type Evidence struct {
	Type EvidenceType `json:"type"`

	// Internal fields.
	PolicyID       int64   `json:"policy_id,omitempty"`
	ChunkIndex     int     `json:"chunk_index,omitempty"`
	DocType        string  `json:"doc_type,omitempty"`
	ContentExcerpt string  `json:"content,omitempty"`

	// Web fields.
	Title       string `json:"title,omitempty"`
	Snippet     string `json:"snippet,omitempty"`
	FetchedDate string `json:"fetched_date,omitempty"`

	// Shared.
	Score    float64 `json:"score"`
	URL      string  `json:"url,omitempty"`
	LinkType string  `json:"link_type"`
}

// NewInternalEvidence builds an internal evidence entry for a policy chunk.
func NewInternalEvidence(policyID int64, chunkIndex int, docType, excerpt string, score float64) Evidence {
	return Evidence{
		Type:           EvidenceInternal,
		PolicyID:       policyID,
		ChunkIndex:     chunkIndex,
		DocType:        docType,
		ContentExcerpt: excerpt,
		Score:          score,
		URL:            policyDetailURL(policyID),
		LinkType:       "policy_detail",
	}
}

// NewWebEvidence builds a web evidence entry for a search result.
func NewWebEvidence(title, url, snippet, fetchedDate string, score float64) Evidence {
	return Evidence{
		Type:        EvidenceWeb,
		Title:       title,
		Snippet:     snippet,
		FetchedDate: fetchedDate,
		Score:       score,
		URL:         url,
		LinkType:    "external",
	}
}

func policyDetailURL(policyID int64) string {
	return fmt.Sprintf("/policy/%d", policyID)
}
