package model

import (
	"fmt"
	"strings"
)

// TagCategory names one of the three tag sequences of an Artifact.
type TagCategory string

// Tag category constants
const (
	TagLocation   TagCategory = "location"
	TagPeople     TagCategory = "people"
	TagActivities TagCategory = "activities"
)

// TagCategories lists every category in display order.
var TagCategories = []TagCategory{TagLocation, TagPeople, TagActivities}

// ParseTagCategory maps a case-insensitive name to a TagCategory.
func ParseTagCategory(s string) (TagCategory, error) {
	switch TagCategory(strings.ToLower(strings.TrimSpace(s))) {
	case TagLocation:
		return TagLocation, nil
	case TagPeople:
		return TagPeople, nil
	case TagActivities:
		return TagActivities, nil
	}
	return "", fmt.Errorf("unknown tag category %q", s)
}

// Tags holds the categorized tags of a story. Sequences are ordered and may
// contain duplicates.
type Tags struct {
	Location   []string `json:"location"`
	People     []string `json:"people"`
	Activities []string `json:"activities"`
}

// Get returns the sequence for a category.
func (t *Tags) Get(c TagCategory) []string {
	switch c {
	case TagLocation:
		return t.Location
	case TagPeople:
		return t.People
	case TagActivities:
		return t.Activities
	}
	return nil
}

// Set replaces the sequence for a category. Unknown categories are ignored.
func (t *Tags) Set(c TagCategory, values []string) {
	switch c {
	case TagLocation:
		t.Location = values
	case TagPeople:
		t.People = values
	case TagActivities:
		t.Activities = values
	}
}

// Artifact is the generated story for a batch of photos.
type Artifact struct {
	Title string `json:"title"`
	Story string `json:"story"`
	Tags  Tags   `json:"tags"`
}

// Fallback artifact content used when generation fails.
const (
	FallbackTitle = "An error occurred"
	FallbackStory = "We're sorry, we couldn't write a story for these photos right now. Please add your photos again to retry."
)

// FallbackArtifact returns the artifact substituted for a failed generation.
func FallbackArtifact() Artifact {
	return Artifact{
		Title: FallbackTitle,
		Story: FallbackStory,
		Tags: Tags{
			Location:   []string{},
			People:     []string{},
			Activities: []string{},
		},
	}
}

// Clone returns a deep copy so callers never share tag slices.
func (a Artifact) Clone() Artifact {
	out := a
	out.Tags = Tags{
		Location:   cloneStrings(a.Tags.Location),
		People:     cloneStrings(a.Tags.People),
		Activities: cloneStrings(a.Tags.Activities),
	}
	return out
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
