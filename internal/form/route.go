package form

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode tells whether the form creates a new resource or edits an existing one.
type Mode string

const (
	ModeNew  Mode = "new"
	ModeEdit Mode = "edit"
)

// Route is the navigation context a form is opened with. Segments are
// relative to the feature root: ["new"] or ["7", "edit"].
type Route struct {
	Segments []string
	Params   map[string]string
}

// ParseRoute splits a relative path such as "7/edit" and fills the id param
// for edit paths.
func ParseRoute(path string) Route {
	var segs []string
	for _, s := range strings.Split(strings.Trim(path, "/"), "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	r := Route{Segments: segs, Params: map[string]string{}}
	if len(segs) > 0 && segs[0] != string(ModeNew) {
		r.Params["id"] = segs[0]
	}
	return r
}

// Mode is new when the first segment is "new", edit otherwise.
func (r Route) Mode() Mode {
	if len(r.Segments) > 0 && r.Segments[0] == string(ModeNew) {
		return ModeNew
	}
	return ModeEdit
}

// ParamID reads the numeric id route parameter.
func ParamID(params map[string]string) (int64, error) {
	raw, ok := params["id"]
	if !ok {
		return 0, fmt.Errorf("missing id route parameter")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id route parameter %q", raw)
	}
	return id, nil
}
