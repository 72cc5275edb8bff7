package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"winery/internal/listing"
)

var errBadID = errors.New("invalid record id")

// ListControls is what a table submits besides its filter fields: a page
// link, a sortable column header, the clear button or the filter form itself.
type ListControls struct {
	Page    int
	HasPage bool
	// Sort is the column whose header was clicked.
	Sort  string
	Clear bool
	// Apply is set when the filter form was submitted.
	Apply bool
}

// ParseListControls reads the table controls from a query string. Unknown or
// malformed values are ignored, since they only steer navigation.
func ParseListControls(q url.Values) ListControls {
	c := ListControls{
		Sort:  strings.TrimSpace(q.Get("sort")),
		Clear: q.Has("clear"),
		Apply: q.Has("apply"),
	}
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Page, c.HasPage = n, true
		}
	}
	return c
}

// applyControls moves view according to c. Filter fields are parsed only when
// the filter form was submitted.
func applyControls[T any, F listing.Filter](v *listing.View[T, F], c ListControls, q url.Values, parse func(url.Values) (F, error)) error {
	switch {
	case c.Clear:
		v.ClearFilters()
	case c.Sort != "":
		v.SetSort(v.Request().Sort.Toggle(c.Sort))
	case c.Apply:
		f, err := parse(q)
		if err != nil {
			return err
		}
		v.Apply(f, c.Page)
	case c.HasPage:
		v.SetPage(c.Page)
	}
	return nil
}

// pathID reads the {id} path segment.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errBadID, r.PathValue("id"))
	}
	return id, nil
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Invalid request format")
	}
	sanitizeValues(r.PostForm)
	sanitizeValues(r.Form)
	return nil
}

// sanitizeInput removes control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func sanitizeValues(v url.Values) {
	for key, values := range v {
		if key == "password" {
			continue
		}
		for i, s := range values {
			values[i] = sanitizeInput(s)
		}
	}
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func confirmed(r *http.Request) bool {
	return r.PostFormValue("confirm") == "yes"
}
