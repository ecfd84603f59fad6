package providers

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// CaptionShape tags the JSON layout a captioning model answered with.
type CaptionShape int

const (
	// [{"generated_text": "..."}]
	ShapeListOfObject CaptionShape = iota
	// ["..."]
	ShapeListOfString
	// a list whose first element is neither of the above
	ShapeListOfOther
	// {"generated_text": "..."}
	ShapeObject
	// any other valid JSON
	ShapeUnrecognized
)

func (s CaptionShape) String() string {
	switch s {
	case ShapeListOfObject:
		return "list_of_object"
	case ShapeListOfString:
		return "list_of_string"
	case ShapeListOfOther:
		return "list_of_other"
	case ShapeObject:
		return "object"
	default:
		return "unrecognized"
	}
}

const captionField = "generated_text"

// Caption is a parsed captioning response.
type Caption struct {
	Shape CaptionShape
	Text  string
}

// ParseCaption extracts the caption from a captioning response body. Every valid
// JSON document yields a caption; unrecognised layouts are returned as their JSON
// text. Only invalid JSON is an error.
func ParseCaption(body []byte) (Caption, error) {
	if !gjson.ValidBytes(body) {
		return Caption{}, fmt.Errorf("%w: caption body is not JSON", ErrMalformedResponse)
	}
	res := gjson.ParseBytes(body)

	switch {
	case res.IsArray():
		elems := res.Array()
		if len(elems) == 0 {
			break
		}
		first := elems[0]
		if first.IsObject() {
			if text := first.Get(captionField); text.Exists() {
				return Caption{Shape: ShapeListOfObject, Text: textOf(text)}, nil
			}
		} else if first.Type == gjson.String {
			return Caption{Shape: ShapeListOfString, Text: first.String()}, nil
		}
		return Caption{Shape: ShapeListOfOther, Text: textOf(first)}, nil
	case res.IsObject():
		if text := res.Get(captionField); text.Exists() {
			return Caption{Shape: ShapeObject, Text: textOf(text)}, nil
		}
	}
	return Caption{Shape: ShapeUnrecognized, Text: textOf(res)}, nil
}

func textOf(r gjson.Result) string {
	if r.Type == gjson.String {
		return r.String()
	}
	return strings.TrimSpace(r.Raw)
}
