package model

import (
	"encoding/json"
	"time"
)

// DefaultAuthor is used when a scraped post carries no author or timestamp
const DefaultAuthor = "Unknown"

// Post represents one scraped social post
type Post struct {
	ID             int64     `json:"id,omitempty"`
	Author         string    `json:"author"`
	Timestamp      string    `json:"timestamp"`
	Emails         string    `json:"emails"`
	ContactNumbers string    `json:"contact_numbers"`
	ApplyLinks     string    `json:"apply_links"`
	Content        string    `json:"content"`
	ContentHash    string    `json:"content_hash"`
	BatchNumber    int       `json:"batch_number"`
	CreatedAt      time.Time `json:"created_at"`
}

// Metadata returns the reference details carried into outbound mail
func (p Post) Metadata() *PostMetadata {
	return &PostMetadata{
		Author:         p.Author,
		Content:        p.Content,
		ContactNumbers: p.ContactNumbers,
		ApplyLinks:     p.ApplyLinks,
	}
}

// PostInput is a post as submitted by the scraper
type PostInput struct {
	Author         string `json:"author"`
	Timestamp      string `json:"timestamp"`
	Emails         string `json:"emails"`
	ContactNumbers string `json:"contact_numbers"`
	ApplyLinks     string `json:"apply_links"`
	Content        string `json:"content"`
}

// UnmarshalJSON fills in the defaults for fields the scraper left out
func (p *PostInput) UnmarshalJSON(data []byte) error {
	type alias PostInput
	in := alias{Author: DefaultAuthor, Timestamp: DefaultAuthor}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*p = PostInput(in)
	return nil
}

// PostBatch is the body of a batch ingest request
type PostBatch struct {
	BatchNumber int         `json:"batch_number"`
	Posts       []PostInput `json:"posts"`
}

// BatchResult summarises what happened to an ingested batch
type BatchResult struct {
	TotalReceived     int               `json:"total_received"`
	NewPosts          int               `json:"new_posts"`
	DuplicatesSkipped int               `json:"duplicates_skipped"`
	SavedToDB         int               `json:"saved_to_db"`
	SavedToCSV        int               `json:"saved_to_csv"`
	BackendErrors     map[string]string `json:"backend_errors,omitempty"`
}

// PostMetadata is the slice of a post quoted back in outbound mail
type PostMetadata struct {
	Author         string `json:"author"`
	Content        string `json:"content"`
	ContactNumbers string `json:"contact_numbers"`
	ApplyLinks     string `json:"apply_links"`
}

// IsEmpty reports whether there is nothing worth quoting
func (m *PostMetadata) IsEmpty() bool {
	return m == nil || (m.Author == "" && m.Content == "" && m.ContactNumbers == "" && m.ApplyLinks == "")
}
