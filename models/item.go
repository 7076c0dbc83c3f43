package models

// TimestampLayout is the wire format for createdAt values (UTC, millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Item represents an entry on the CRUD test dashboard.
type Item struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Completed   bool   `json:"completed" yaml:"completed"`
	CreatedAt   string `json:"createdAt" yaml:"createdAt"`
}

// CreateItemRequest is the payload accepted by POST /api/items.
type CreateItemRequest struct {
	Title       string `json:"title" validate:"required,notblank"`
	Description string `json:"description" validate:"required,notblank"`
}

// UpdateItemRequest is the payload accepted by PUT /api/items/{id}.
// Completed is left untyped so that only a real JSON boolean is applied.
type UpdateItemRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   any    `json:"completed"`
}

// Patch converts the request into an ItemPatch, dropping empty strings.
func (r UpdateItemRequest) Patch() ItemPatch {
	var p ItemPatch
	if r.Title != "" {
		p.Title = &r.Title
	}
	if r.Description != "" {
		p.Description = &r.Description
	}
	if completed, ok := r.Completed.(bool); ok {
		p.Completed = &completed
	}
	return p
}

// ItemPatch holds the fields to merge into a stored item. Nil fields are left untouched.
type ItemPatch struct {
	Title       *string
	Description *string
	Completed   *bool
}

// Apply merges the patch into item.
func (p ItemPatch) Apply(item *Item) {
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Completed != nil {
		item.Completed = *p.Completed
	}
}
