package model

import (
	"strings"
	"time"
)

// ItemType distinguishes the two node variants of the tree.
type ItemType string

const (
	TypeFolder ItemType = "folder"
	TypeFile   ItemType = "file"
)

// Department is the closed enumeration used for department-level access.
type Department string

const (
	DeptSales       Department = "sales"
	DeptHR          Department = "hr"
	DeptManagement  Department = "management"
	DeptDevelopment Department = "development"
	DeptAll         Department = "all"
	DeptNone        Department = "none"
)

// Departments lists every valid Department value, for validation.
var Departments = []Department{
	DeptSales, DeptHR, DeptManagement, DeptDevelopment, DeptAll, DeptNone,
}

// Item is a node in a tenant's hierarchical namespace: a folder or a file.
// Path is the canonical relative location (ancestor names joined by "/",
// rooted at the tenant's company id) and must always match the chain of
// ancestor names; the tree services keep it consistent with the blob mirror.
// File is nil for folders and always set for files.
type Item struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      ItemType `json:"type"`
	CompanyID string   `json:"company_id"`
	ParentID  *string  `json:"parent_id"` // nil = tenant root
	Path      string   `json:"path"`

	File *FileMeta `json:"file,omitempty"`

	ExpiryDate        *time.Time `json:"expiry_date"` // nil = lifetime
	IsRestricted      bool       `json:"is_restricted"`
	AllowedUsers      []string   `json:"allowed_users"`
	Department        Department `json:"department"`
	SharedDepartments []string   `json:"shared_departments"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// FileMeta is the file-only payload of an Item.
type FileMeta struct {
	MimeType     string `json:"mime_type"`
	ByteSize     int64  `json:"byte_size"`
	OriginalName string `json:"original_name"`
	RelativePath string `json:"relative_path"` // path as uploaded, before folder resolution
}

// IsFolder reports whether the item is the folder variant.
func (i *Item) IsFolder() bool { return i.Type == TypeFolder }

// Expired reports whether the item's expiry date is set and has passed.
func (i *Item) Expired(now time.Time) bool {
	return i.ExpiryDate != nil && now.After(*i.ExpiryDate)
}

// HasAllowedUser reports whether the given principal id holds an explicit grant.
func (i *Item) HasAllowedUser(userID string) bool {
	for _, id := range i.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// SharedWith reports whether the department appears in SharedDepartments.
// Shared department names are stored lowercased.
func (i *Item) SharedWith(department string) bool {
	department = strings.ToLower(department)
	for _, d := range i.SharedDepartments {
		if d == department {
			return true
		}
	}
	return false
}

// ValidDepartment reports whether d is a member of the closed enumeration.
func ValidDepartment(d Department) bool {
	for _, v := range Departments {
		if d == v {
			return true
		}
	}
	return false
}
