package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDetailsFullForm(t *testing.T) {
	title, desc, tags := parseDetails("Title: My Video\nDescription: A test clip\nTags: go, telegram , youtube")
	require.Equal(t, "My Video", title)
	require.Equal(t, "A test clip", desc)
	require.Equal(t, []string{"go", "telegram", "youtube"}, tags)
}

func TestParseDetailsTitleOnly(t *testing.T) {
	title, desc, tags := parseDetails("title: lowercase prefix works")
	require.Equal(t, "lowercase prefix works", title)
	require.Empty(t, desc)
	require.Nil(t, tags)
}

func TestParseDetailsMissingTitle(t *testing.T) {
	title, desc, tags := parseDetails("Description: no title here\nTags: a")
	require.Empty(t, title)
	require.Equal(t, "no title here", desc)
	require.Equal(t, []string{"a"}, tags)
}

func TestParseDetailsIgnoresNoise(t *testing.T) {
	title, _, tags := parseDetails("hello bot\nTitle:  Spaced Out  \nTags: ,, ,")
	require.Equal(t, "Spaced Out", title)
	require.Nil(t, tags)
}
