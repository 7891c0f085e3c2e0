package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/commerce-agent/cagent-go/internal/agent"
	"github.com/commerce-agent/cagent-go/internal/extractor"
	"github.com/commerce-agent/cagent-go/internal/logging"
	"github.com/commerce-agent/cagent-go/internal/provider"
	"github.com/commerce-agent/cagent-go/internal/recommender"
	"github.com/commerce-agent/cagent-go/internal/webx"
)

// NewAskCmd constructs the `cagent ask` command, which sends a single chat
// turn to the agent and prints the reply and product cards to stdout.
func NewAskCmd() *cobra.Command {
	var imagePath string
	var sessionID string
	var allowWeb bool
	var extractorID string

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Ask the shopping assistant a question",
		Long: `Send one message to the CommerceAgent and print the answer.

The agent routes the message by intent: small talk gets a conversational
reply, an attached image triggers visual matching, and everything else runs
the product recommendation pipeline.

Examples:
  cagent ask "wireless noise cancelling headphones under $300"
  cagent ask --image shoe.jpg "something like this in blue"
  cagent ask --allow-web "what are the latest fitness smartwatches?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				// No model means deterministic answers, not a dead CLI.
				fmt.Fprintf(os.Stderr, "warning: model provider unavailable (%v), using deterministic answers\n", err)
				chatModel = nil
			}

			service, err := recommender.GetService(ctx, chatModel)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise service: %w", err)
			}

			var augmenter *webx.Augmenter
			if allowWeb {
				gate := webx.NewDomainGateFromEnv()
				fetcher := webx.NewFetcher(gate, os.Getenv("WEB_CACHE_DIR"))
				augmenter = webx.NewAugmenter(webx.NewDDGSearch(), fetcher)
			}

			chatAgent, err := agent.New(&agent.Config{
				Service:   service,
				Store:     service.Store(),
				Augmenter: augmenter,
				Extractor: extractor.NewFromEnv(),
			})
			if err != nil {
				return fmt.Errorf("ask: failed to initialise agent: %w", err)
			}

			req := &agent.ChatRequest{
				SessionID:   sessionID,
				Message:     strings.Join(args, " "),
				AllowWeb:    allowWeb,
				ExtractorID: extractorID,
			}
			if imagePath != "" {
				img, readErr := os.ReadFile(imagePath)
				if readErr != nil {
					return fmt.Errorf("ask: could not read image %s: %w", imagePath, readErr)
				}
				req.Image = img
			}

			resp, err := chatAgent.Chat(ctx, req)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(resp.Reply)
			for i, card := range resp.Results {
				fmt.Printf("%d. %s (%s) - %s %.2f",
					i+1, card.Title, card.Brand, card.Currency, float64(card.PriceCents)/100)
				if card.Rationale != "" {
					fmt.Printf(" [%s]", card.Rationale)
				}
				fmt.Println()
			}
			if resp.FollowUp != "" {
				fmt.Println(resp.FollowUp)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "Path to an image to match products against")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID to continue an existing conversation")
	cmd.Flags().BoolVar(&allowWeb, "allow-web", false, "Allow live web candidates from allowlisted domains")
	cmd.Flags().StringVar(&extractorID, "extractor", "", "Hosted extractor robot ID to source candidates from")

	return cmd
}
