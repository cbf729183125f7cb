package client

import (
	"time"

	"github.com/google/uuid"
)

// DocumentType labels document records on the wire and in the store.
const DocumentType = "document"

// Document is the entity type the daemon hosts. The dirty flag rides
// inside the payload so the stored JSON and the sync state never
// disagree.
type Document struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	Dirty      bool      `json:"dirty,omitempty"`
}

// NewDocument mints a document with a fresh id. Saving it to the store
// marks it pending.
func NewDocument(title, body string) Document {
	now := time.Now().UTC()
	return Document{
		ID:         uuid.NewString(),
		Title:      title,
		Body:       body,
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

// Revised returns a copy carrying new content and a touched modified
// time, ready to be saved.
func (d Document) Revised(title, body string) Document {
	d.Title = title
	d.Body = body
	d.ModifiedAt = time.Now().UTC()
	return d
}

func (d Document) SyncID() string { return d.ID }
func (d Document) Pending() bool  { return d.Dirty }

func (d Document) WithPending(pending bool) Document {
	d.Dirty = pending
	return d
}

func (d Document) CreatedTime() time.Time  { return d.CreatedAt }
func (d Document) ModifiedTime() time.Time { return d.ModifiedAt }
