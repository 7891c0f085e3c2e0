package agent

import (
	"strings"
	"testing"
)

func Test_DetectIntent(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		message  string
		hasImage bool
		want     Intent
	}{
		{"greeting", "hello", false, IntentSmalltalk},
		{"short greeting", "hi", false, IntentSmalltalk},
		{"capability question", "capabilities", false, IntentSmalltalk},
		{"greeting with product terms", "hi, find me a smartwatch", false, IntentTextRecommendation},
		{"plain product request", "running shoes under 100", false, IntentTextRecommendation},
		{"image keyword", "picture of a hoodie", false, IntentImageSearch},
		{"photo keyword", "match this photo", false, IntentImageSearch},
		{"attached image overrides text", "hello", true, IntentImageSearch},
		{"empty message", "", false, IntentTextRecommendation},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := DetectIntent(tc.message, tc.hasImage); got != tc.want {
				t.Errorf("DetectIntent(%q, %v) = %s, want %s", tc.message, tc.hasImage, got, tc.want)
			}
		})
	}
}

func Test_SmalltalkReply(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		message string
		want    string
	}{
		{"name question", "what is your name", "I'm CommerceAgent"},
		{"capability question", "what are your capabilities", "search the catalog"},
		{"plain greeting", "hello", "shopping for"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := smalltalkReply(tc.message)
			if !strings.Contains(got, tc.want) {
				t.Errorf("smalltalkReply(%q) = %q, want it to mention %q", tc.message, got, tc.want)
			}
		})
	}
}
