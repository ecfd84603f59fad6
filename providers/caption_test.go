package providers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCaption(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		shape CaptionShape
		text  string
	}{
		{"list of object", `[{"generated_text":"a cat"}]`, ShapeListOfObject, "a cat"},
		{"list of string", `[ "a cat" ]`, ShapeListOfString, "a cat"},
		{"object", `{"generated_text":"a cat"}`, ShapeObject, "a cat"},
		{"list of object without caption", `[{"label":"cat","score":0.9}]`, ShapeListOfOther, `{"label":"cat","score":0.9}`},
		{"list of number", `[3, 4]`, ShapeListOfOther, "3"},
		{"empty list", `[]`, ShapeUnrecognized, "[]"},
		{"object without caption", `{"error":"loading"}`, ShapeUnrecognized, `{"error":"loading"}`},
		{"bare string", `"a cat"`, ShapeUnrecognized, "a cat"},
		{"non string caption", `{"generated_text": 12}`, ShapeObject, "12"},
		{"escaped caption", `[{"generated_text":"a \"big\" cat"}]`, ShapeListOfObject, `a "big" cat`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCaption([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.shape, got.Shape)
			assert.Equal(t, tt.text, got.Text)
		})
	}
}

func TestParseCaptionInvalidJSON(t *testing.T) {
	for _, body := range []string{"", "<html>busy</html>", `[{"generated_text":`} {
		_, err := ParseCaption([]byte(body))
		assert.True(t, errors.Is(err, ErrMalformedResponse), "body %q", body)
	}
}

func TestCaptionShapeString(t *testing.T) {
	assert.Equal(t, "list_of_object", ShapeListOfObject.String())
	assert.Equal(t, "unrecognized", CaptionShape(99).String())
}
