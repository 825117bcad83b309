package users

import (
	pkgpagination "github.com/posworks/posgrid-backend/pkg/pagination"
)

// ListParams holds the cursor pagination inputs for the user directory.
type ListParams struct {
	pkgpagination.Params
}

// ListResult is one page of users plus the cursor for the next page.
// Cursor is empty on the last page.
type ListResult struct {
	Users  []UserDTO `json:"users"`
	Count  int       `json:"count"`
	Cursor string    `json:"cursor"`
}

type listQuery struct {
	limit  int
	cursor *pkgpagination.Cursor
}
