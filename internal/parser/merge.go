package parser

import "github.com/starford/folio/internal/models"

// Merge returns a copy of doc whose attributes are the union of doc's and
// updates, updates winning per key. Keys absent from updates keep their value
// and position.
func Merge(doc models.Document, updates *models.Attributes) models.Document {
	out := doc.Clone()
	for _, k := range updates.Keys() {
		v, _ := updates.Get(k)
		out.Attributes.Set(k, v.Clone())
	}
	return out
}
