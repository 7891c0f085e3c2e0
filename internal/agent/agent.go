package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/commerce-agent/cagent-go/internal/catalog"
	"github.com/commerce-agent/cagent-go/internal/extractor"
	"github.com/commerce-agent/cagent-go/internal/logging"
	"github.com/commerce-agent/cagent-go/internal/recommender"
	"github.com/commerce-agent/cagent-go/internal/store"
	"github.com/commerce-agent/cagent-go/internal/webx"
)

// defaultResultLimit caps how many cards a chat turn returns.
const defaultResultLimit = 5

// followUpQuestion is asked after a successful product turn when the shopper
// has not mentioned sizing yet.
const followUpQuestion = "Do you have a preferred size?"

// Config holds the dependencies required to construct an Agent.
type Config struct {
	// Service is the recommendation service backing all product intents.
	Service *recommender.Service

	// Store is the product catalog, used for direct keyword matching.
	Store *catalog.Store

	// Augmenter supplies live web candidates when a request allows them.
	// May be nil to disable the web branch.
	Augmenter *webx.Augmenter

	// Extractor runs hosted extractor robots when a request names one.
	// May be nil to disable the extractor branch.
	Extractor *extractor.Client

	// History is the optional conversation store used to persist and replay
	// prior turns. If nil, each turn is stateless.
	History store.ConversationStore

	// ResultLimit caps cards per turn. Defaults to 5 if zero.
	ResultLimit int
}

// Agent routes chat messages to the right product operation and shapes the
// conversational reply.
type Agent struct {
	service   *recommender.Service
	store     *catalog.Store
	augmenter *webx.Augmenter
	extractor *extractor.Client
	history   store.ConversationStore
	limit     int
}

// New constructs an Agent from the provided Config.
func New(cfg *Config) (*Agent, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("agent: Service must not be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("agent: Store must not be nil")
	}
	limit := cfg.ResultLimit
	if limit <= 0 {
		limit = defaultResultLimit
	}
	return &Agent{
		service:   cfg.Service,
		store:     cfg.Store,
		augmenter: cfg.Augmenter,
		extractor: cfg.Extractor,
		history:   cfg.History,
		limit:     limit,
	}, nil
}

// ChatRequest is one inbound chat turn.
type ChatRequest struct {
	// SessionID threads turns into a conversation. Empty means a new session.
	SessionID string `json:"session_id,omitempty"`

	// Message is the shopper's text.
	Message string `json:"message"`

	// Image is an optional raw image payload.
	Image []byte `json:"image,omitempty"`

	// AllowWeb permits the live web branch for this turn.
	AllowWeb bool `json:"allow_web,omitempty"`

	// ExtractorID names a hosted extractor robot to try before web search.
	ExtractorID string `json:"extractor_id,omitempty"`
}

// ChatResponse is the agent's reply for one turn.
type ChatResponse struct {
	// SessionID echoes (or assigns) the conversation id.
	SessionID string `json:"session_id"`

	// Intent is the detected intent for this turn.
	Intent Intent `json:"intent"`

	// Reply is the conversational answer text.
	Reply string `json:"reply"`

	// Results are the ranked product cards, possibly empty.
	Results []recommender.ProductCard `json:"results,omitempty"`

	// FollowUp is an optional clarifying question.
	FollowUp string `json:"follow_up,omitempty"`

	// Debug carries per-turn diagnostics.
	Debug map[string]interface{} `json:"debug,omitempty"`
}

// Chat handles one conversation turn: classify, route, answer. Dependency
// failures inside a branch cascade to the next branch; Chat itself only
// fails when the catalog is unavailable.
func (a *Agent) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	a.persist(ctx, sessionID, store.RoleUser, req.Message)

	intent := DetectIntent(req.Message, len(req.Image) > 0)
	resp := &ChatResponse{
		SessionID: sessionID,
		Intent:    intent,
		Debug:     map[string]interface{}{"intent": string(intent)},
	}

	switch intent {
	case IntentSmalltalk:
		resp.Reply = smalltalkReply(req.Message)

	case IntentImageSearch:
		if err := a.imageTurn(ctx, req, resp); err != nil {
			return nil, err
		}

	default:
		if err := a.textTurn(ctx, req, resp); err != nil {
			return nil, err
		}
	}

	if len(resp.Results) > 0 && !strings.Contains(strings.ToLower(req.Message), "size") {
		resp.FollowUp = followUpQuestion
	}

	a.persist(ctx, sessionID, store.RoleAssistant, resp.Reply)
	return resp, nil
}

func (a *Agent) imageTurn(ctx context.Context, req *ChatRequest, resp *ChatResponse) error {
	result, err := a.service.ImageSearch(ctx, req.Image, req.Message, catalog.Filters{}, a.limit)
	if err != nil {
		return err
	}
	resp.Results = result.Results
	for k, v := range result.Debug {
		resp.Debug[k] = v
	}
	if len(result.Results) == 0 {
		resp.Reply = "I could not find catalog products matching that image."
		return nil
	}
	resp.Reply = fmt.Sprintf("Based on your image, here are %d matches: %s.",
		len(result.Results), titleList(result.Results))
	return nil
}

func (a *Agent) textTurn(ctx context.Context, req *ChatRequest, resp *ChatResponse) error {
	sources := []candidateSource{&catalogKeywordSource{store: a.store}}
	if req.ExtractorID != "" && a.extractor != nil {
		sources = append(sources, &extractorSource{client: a.extractor, extractorID: req.ExtractorID})
	}
	if req.AllowWeb && a.augmenter != nil {
		sources = append(sources, &webSource{augmenter: a.augmenter})
	}
	sources = append(sources, &recommendSource{service: a.service})

	cards, sourceName := newSourceChain(sources...).Fetch(ctx, req.Message, a.limit)
	resp.Results = cards
	resp.Debug["source"] = sourceName

	if len(cards) == 0 {
		resp.Reply = "I could not find relevant catalog or web entries for that request."
		return nil
	}
	resp.Reply = fmt.Sprintf("Here are %d matches: %s.", len(cards), titleList(cards))
	return nil
}

// persist writes a history message when a store is configured; failures are
// logged and never fail the turn.
func (a *Agent) persist(ctx context.Context, sessionID string, role store.Role, content string) {
	if a.history == nil || content == "" {
		return
	}
	if err := a.history.Append(ctx, sessionID, role, content); err != nil {
		logging.FromContext(ctx).Warn("history: failed to persist message", slog.Any("error", err))
	}
}

// titleList names up to three result titles for a reply sentence.
func titleList(cards []recommender.ProductCard) string {
	titles := make([]string, 0, 3)
	for i, c := range cards {
		if i == 3 {
			break
		}
		titles = append(titles, c.Title)
	}
	return strings.Join(titles, ", ")
}

// extractorSource runs a hosted extractor robot and keeps rows relevant to
// the query.
type extractorSource struct {
	client      *extractor.Client
	extractorID string
}

func (s *extractorSource) Name() string { return "extractor" }

func (s *extractorSource) Fetch(ctx context.Context, query string, limit int) []recommender.ProductCard {
	cards := s.client.Run(ctx, s.extractorID)
	return webCardsToResults(filterCardsByTerms(cards, catalog.QueryTerms(query)), limit, "found via your extractor")
}

// webSource searches the live web for candidate pages.
type webSource struct {
	augmenter *webx.Augmenter
}

func (s *webSource) Name() string { return "web_search" }

func (s *webSource) Fetch(ctx context.Context, query string, limit int) []recommender.ProductCard {
	return webCardsToResults(s.augmenter.Augment(ctx, query, limit), limit, "found on the web")
}

// recommendSource is the terminal branch: the full recommendation pipeline.
type recommendSource struct {
	service *recommender.Service
}

func (s *recommendSource) Name() string { return "recommender" }

func (s *recommendSource) Fetch(ctx context.Context, query string, limit int) []recommender.ProductCard {
	resp, err := s.service.Recommend(ctx, query, catalog.Filters{}, limit)
	if err != nil {
		logging.FromContext(ctx).Warn("recommendation fallback failed", "error", err)
		return nil
	}
	return resp.Results
}

// filterCardsByTerms keeps cards whose text mentions any query term. With no
// terms, or when filtering would drop everything, all cards are kept.
func filterCardsByTerms(cards []webx.Card, terms []string) []webx.Card {
	if len(terms) == 0 || len(cards) == 0 {
		return cards
	}
	kept := make([]webx.Card, 0, len(cards))
	for _, c := range cards {
		hay := catalog.Haystack(c.Product)
		for _, t := range terms {
			if strings.Contains(hay, t) {
				kept = append(kept, c)
				break
			}
		}
	}
	if len(kept) == 0 {
		return cards
	}
	return kept
}

// webCardsToResults projects web cards into chat result cards with a simple
// positional score.
func webCardsToResults(cards []webx.Card, limit int, rationale string) []recommender.ProductCard {
	if len(cards) > limit {
		cards = cards[:limit]
	}
	out := make([]recommender.ProductCard, 0, len(cards))
	for i, c := range cards {
		card := productCard(c.Product, float64(len(cards)-i)/float64(len(cards)+1))
		card.Source = "web"
		card.URL = c.URL
		card.Rationale = rationale
		out = append(out, card)
	}
	return out
}
