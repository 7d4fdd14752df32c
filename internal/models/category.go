// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// Category is a node in the product/blog/news taxonomy. The tree is stored
// as an adjacency list: ParentID is the only structural field, children are
// always derived from it.
type Category struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	AlternateName string     `json:"alternate_name"`
	Slug          string     `json:"slug"`
	ParentID      *uuid.UUID `json:"parent_id"`
	IsActive      bool       `json:"is_active"`
	ImageRef      string     `json:"image_ref"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsRoot reports whether the category has no parent.
func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}

// CategoryPatch describes a partial update. Nil fields are left untouched.
// ParentID is only applied when SetParent is true, so that a nil ParentID
// can mean "move to root".
type CategoryPatch struct {
	Name          *string
	AlternateName *string
	Slug          *string
	IsActive      *bool
	ImageRef      *string

	SetParent bool
	ParentID  *uuid.UUID
}

// Empty reports whether the patch changes nothing.
func (p CategoryPatch) Empty() bool {
	return p.Name == nil && p.AlternateName == nil && p.Slug == nil &&
		p.IsActive == nil && p.ImageRef == nil && !p.SetParent
}

// Apply copies the patch onto c. The caller is responsible for UpdatedAt.
func (p CategoryPatch) Apply(c *Category) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.AlternateName != nil {
		c.AlternateName = *p.AlternateName
	}
	if p.Slug != nil {
		c.Slug = *p.Slug
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}
	if p.ImageRef != nil {
		c.ImageRef = *p.ImageRef
	}
	if p.SetParent {
		if p.ParentID == nil {
			c.ParentID = nil
		} else {
			pid := *p.ParentID
			c.ParentID = &pid
		}
	}
}
