package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/driftsync/driftsync"
)

var (
	_ driftsync.Entity[Document] = Document{}
	_ driftsync.Timestamped      = Document{}
)

func TestNewDocument(t *testing.T) {
	doc := NewDocument("notes", "remember the milk")

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "notes", doc.Title)
	assert.False(t, doc.Pending())
	assert.Equal(t, doc.CreatedAt, doc.ModifiedAt)
	assert.Equal(t, time.UTC, doc.CreatedAt.Location())
}

func TestDocumentRevised(t *testing.T) {
	doc := NewDocument("notes", "v1")
	rev := doc.Revised("notes", "v2")

	assert.Equal(t, doc.ID, rev.SyncID())
	assert.Equal(t, "v2", rev.Body)
	assert.False(t, rev.ModifiedAt.Before(doc.ModifiedAt))
	// the original copy is untouched
	assert.Equal(t, "v1", doc.Body)
}

func TestDocumentWithPending(t *testing.T) {
	doc := NewDocument("notes", "draft")
	marked := doc.WithPending(true)

	assert.True(t, marked.Pending())
	assert.False(t, doc.Pending())
}
