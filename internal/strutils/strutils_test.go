// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package strutils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrutil_ListContains(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	haystack := []string{
		"80",
		"443",
		"8080",
	}
	require.False(StrListContains(haystack, "9999"))
	require.True(StrListContains(haystack, "443"))
	require.False(StrListContains(nil, "443"))
}

func TestStripMarkup(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "invalid_grant", want: "invalid_grant"},
		{name: "whitespace", in: "  code   expired\n\tretry ", want: "code expired retry"},
		{name: "tags", in: "<b>bad</b> <i>request</i>", want: "bad request"},
		{name: "script", in: `oops<script>alert("x")</script> done`, want: "oops done"},
		{name: "style", in: `<style>body{color:red}</style>denied`, want: "denied"},
		{name: "entities", in: "a &lt;b&gt; &amp; c", want: "a <b> & c"},
		{name: "comment", in: "before<!-- hidden -->after", want: "beforeafter"},
		{name: "img onerror", in: `<img src=x onerror="alert(1)">invalid client`, want: "invalid client"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StripMarkup(tt.in))
		})
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.Equal("hello", Truncate("hello", 10))
	assert.Equal("hello", Truncate("hello", 5))
	assert.Equal("he...", Truncate("hello world", 5))
	assert.Equal("hel", Truncate("hello", 3))
	assert.Equal("hello", Truncate("hello", 0))
	assert.Equal("héé...", Truncate("hééééééé", 6))
}

func TestSanitize(t *testing.T) {
	t.Parallel()
	in := "<h1>Error</h1>" + strings.Repeat("x", 600)
	got := Sanitize(in, 500)
	assert.Len(t, []rune(got), 500)
	assert.True(t, strings.HasPrefix(got, "Error x"))
	assert.NotContains(t, got, "<")
}
