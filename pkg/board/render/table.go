package render

import (
	json "github.com/goccy/go-json"

	berrors "github.com/alex-tsiresy/lorebridge/pkg/board/errors"
)

// Table is the parsed form of a table node's JSON content.
type Table struct {
	Title   string   `json:"title,omitempty"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// TryParseTable attempts a full parse of accumulated table JSON.
//
// During streaming the accumulated text is almost always incomplete, so a
// parse failure here is expected and not an error; callers probe after every
// chunk and keep the last successful parse. ok is false until the JSON
// becomes complete.
func TryParseTable(raw string) (*Table, bool) {
	var t Table
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, false
	}
	return &t, true
}

// ParseTable parses final table content. Unlike TryParseTable, failure here
// means the stream completed without ever producing valid JSON and is
// reported as a content error.
func ParseTable(raw string) (*Table, error) {
	t, ok := TryParseTable(raw)
	if !ok {
		return nil, &berrors.ContentError{
			Kind:    "table",
			Message: "accumulated text is not valid JSON",
		}
	}
	return t, nil
}
