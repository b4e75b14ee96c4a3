// Package pagination implements keyset (cursor) paging for admin listings.
// A cursor is opaque to clients; it encodes the sort key and id of the last
// row returned.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 50
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Params holds paging parameters extracted from a request.
type Params struct {
	Limit int
	After *Cursor
}

// Cursor marks the last row of a page.
type Cursor struct {
	Key string `json:"k"`
	ID  string `json:"i"`
}

func (c Cursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.ID == "" {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// FromContext reads "limit" and "cursor". The limit is clamped to
// [1, MaxLimit] with DefaultLimit for missing or invalid values.
func FromContext(c echo.Context) (Params, error) {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	after, err := DecodeCursor(c.QueryParam("cursor"))
	if err != nil {
		return Params{}, err
	}
	return Params{Limit: limit, After: after}, nil
}

// Fetch is the number of rows a repository should read: one more than the
// page so that the presence of a next page is known.
func (p Params) Fetch() int { return p.Limit + 1 }

// Page wraps a paged API response.
type Page struct {
	Data       interface{} `json:"data"`
	NextCursor string      `json:"nextCursor,omitempty"`
	HasMore    bool        `json:"hasMore"`
}

// Trim cuts rows fetched with Fetch() down to the page size and reports
// whether more rows exist.
func Trim[T any](rows []T, p Params) ([]T, bool) {
	if len(rows) > p.Limit {
		return rows[:p.Limit], true
	}
	return rows, false
}

func NewPage(data interface{}, next *Cursor, hasMore bool) *Page {
	pg := &Page{Data: data, HasMore: hasMore}
	if hasMore && next != nil {
		pg.NextCursor = next.Encode()
	}
	return pg
}
