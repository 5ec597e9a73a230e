package models

// CatalogEntry records where a conversation's note lives and which revision
// of it was last reconciled.
type CatalogEntry struct {
	ConversationID string   `json:"conversationId"`
	Path           string   `json:"path"`
	UpdateTime     int64    `json:"updateTime"`
	Provider       Provider `json:"provider"`
}

// ImportedArchive is keyed by the archive's content digest.
type ImportedArchive struct {
	FileName   string `json:"fileName"`
	ImportedAt int64  `json:"importedAt"`
}
