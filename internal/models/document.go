// Package models defines the domain types shared by the folio core.
package models

import "time"

// Standard front matter keys that are always present after normalization.
const (
	KeyTitle       = "title"
	KeyAuthor      = "author"
	KeyDate        = "date"
	KeyDescription = "description"
	KeyCategories  = "categories"
	KeyCategory    = "category"
	KeyTags        = "tags"
)

// Document is one parsed Markdown file.
type Document struct {
	Name       string      `json:"name"`
	Path       string      `json:"path"`
	Body       string      `json:"body"`
	Attributes *Attributes `json:"attributes"`
	// RawText is the file content exactly as read.
	RawText string `json:"rawText"`
}

// Title returns the title attribute.
func (d Document) Title() string {
	return d.Attributes.GetString(KeyTitle)
}

// Clone returns a copy that shares nothing mutable with d.
func (d Document) Clone() Document {
	d.Attributes = d.Attributes.Clone()
	return d
}

// FileTreeNode is one entry of a scanned directory tree.
type FileTreeNode struct {
	Name        string         `json:"name"`
	Path        string         `json:"path"`
	IsDirectory bool           `json:"isDirectory"`
	Children    []FileTreeNode `json:"children,omitempty"`
}

// WorkspaceState is the snapshot published by a posts store.
type WorkspaceState struct {
	ProjectKey    string         `json:"projectKey"`
	Posts         []Document     `json:"posts"`
	FileTree      []FileTreeNode `json:"fileTree"`
	IsLoading     bool           `json:"isLoading"`
	IsLoadingTree bool           `json:"isLoadingTree"`
}

// RemoteFileMetadata is the bookkeeping kept per remote path. An empty
// VersionMarker means the file has not been confirmed to exist remotely.
type RemoteFileMetadata struct {
	VersionMarker string    `json:"versionMarker,omitempty"`
	LastFetched   time.Time `json:"lastFetched"`
}

// FieldType is the inferred type of a front matter key.
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldNumber   FieldType = "number"
	FieldBoolean  FieldType = "boolean"
	FieldArray    FieldType = "array"
	FieldObject   FieldType = "object"
	FieldDate     FieldType = "date"
	FieldDateTime FieldType = "datetime"
)

// Field describes one key of the effective attribute schema.
type Field struct {
	Key          string    `json:"key"`
	Type         FieldType `json:"type"`
	SampleValues []string  `json:"sampleValues"`
}
