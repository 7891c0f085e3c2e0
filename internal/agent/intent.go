// Package agent implements the conversational layer over the recommender:
// intent routing, a cascading candidate source chain for text requests, and
// session-scoped chat with persisted history.
package agent

import (
	"strings"

	"github.com/commerce-agent/cagent-go/internal/catalog"
)

// Intent classifies what a chat message is asking for.
type Intent string

const (
	// IntentSmalltalk is a greeting or a question about the agent itself.
	IntentSmalltalk Intent = "smalltalk"
	// IntentImageSearch is a request led by an uploaded or referenced image.
	IntentImageSearch Intent = "image_search"
	// IntentTextRecommendation is a product request expressed in text.
	IntentTextRecommendation Intent = "text_recommendation"
)

// agentName is the persona used in smalltalk replies.
const agentName = "CommerceAgent"

// smalltalkKeywords trigger the smalltalk intent when the message carries no
// product terms beyond them.
var smalltalkKeywords = map[string]struct{}{
	"hello": {}, "hi": {}, "hey": {}, "name": {}, "capabilities": {},
}

// imageKeywords mark a message as image-led even without an image payload.
var imageKeywords = map[string]struct{}{
	"image": {}, "photo": {}, "picture": {},
}

// DetectIntent classifies a message. Product terms always override a
// smalltalk match: "hi, find me a smartwatch" is a recommendation, not a
// greeting. An attached image forces the image intent.
func DetectIntent(message string, hasImage bool) Intent {
	if hasImage {
		return IntentImageSearch
	}

	terms := catalog.QueryTerms(message)
	sawSmalltalk := false
	sawImage := false
	productTerms := 0
	for _, t := range terms {
		if _, ok := smalltalkKeywords[t]; ok {
			sawSmalltalk = true
			continue
		}
		if _, ok := imageKeywords[t]; ok {
			sawImage = true
			continue
		}
		productTerms++
	}

	if sawSmalltalk && productTerms == 0 {
		return IntentSmalltalk
	}
	if sawImage {
		return IntentImageSearch
	}
	return IntentTextRecommendation
}

// smalltalkReply answers greetings and capability questions in the agent's
// own voice.
func smalltalkReply(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "name"):
		return "I'm " + agentName + ", your shopping assistant."
	case strings.Contains(lower, "capabilities"):
		return "I'm " + agentName + ". I can search the catalog, match products to an image, and pull in live web results when you ask."
	default:
		return "Hi! I'm " + agentName + ". Tell me what you're shopping for and I'll find matching products."
	}
}
