package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/promptd/promptd/internal/config"
)

// --- enhance ---

var enhanceCmd = &cobra.Command{
	Use:   "enhance <prompt>",
	Short: "Enhance a prompt",
	Long: `Enhance a prompt.

Examples:
  promptd enhance "help me write code"
  promptd enhance --multi "help me write code"
  promptd enhance --multi --user alice "plan my marketing strategy"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input := strings.Join(args, " ")
		multi, _ := cmd.Flags().GetBool("multi")
		user, _ := cmd.Flags().GetString("user")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{"userInput": input, "userId": user}

		if !multi {
			resp, err := client.post(cmd.Context(), "/v1/enhance", body)
			if err != nil {
				return err
			}

			var result struct {
				EnhancedPrompt string `json:"enhancedPrompt"`
				Analysis       struct {
					Issues      []string `json:"issues"`
					Suggestions []string `json:"suggestions"`
					Score       int      `json:"score"`
				} `json:"analysis"`
			}
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}

			printStatus("Score", "%d", result.Analysis.Score)
			for _, issue := range result.Analysis.Issues {
				printWarning("%s", issue)
			}
			fmt.Println(result.EnhancedPrompt)
			return nil
		}

		resp, err := client.post(cmd.Context(), "/v1/enhance/multi", body)
		if err != nil {
			return err
		}

		var result struct {
			Enhancements []struct {
				ID     string `json:"id"`
				Title  string `json:"title"`
				Prompt string `json:"prompt"`
				Score  int    `json:"score"`
			} `json:"enhancements"`
			PersonalizedHints []string `json:"personalizedHints"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for _, hint := range result.PersonalizedHints {
			printStatus("Hint", "%s", hint)
		}
		for _, e := range result.Enhancements {
			fmt.Printf("\n%s [score: %d]\n", colorize(colorBold, e.Title), e.Score)
			fmt.Printf("  %s\n", e.Prompt)
		}
		return nil
	},
}

func init() {
	enhanceCmd.Flags().Bool("multi", false, "generate three styled variants instead of one rewrite")
	enhanceCmd.Flags().String("user", "default", "user identifier for personalization")
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage user profiles",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a user profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/profile/"+user)
		if err != nil {
			return err
		}

		var profile any
		if err := decodeJSON(resp, &profile); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(profile)
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a profile preference (complexity, tone, responseLength)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		user, _ := cmd.Flags().GetString("user")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{key: value}
		resp, err := client.patch(cmd.Context(), "/profile/"+user, body)
		if err != nil {
			return err
		}

		var result any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Set %s = %s for %s", key, value, user)
		return nil
	},
}

func init() {
	profileCmd.PersistentFlags().String("user", "default", "user identifier")
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "List recent enhancement runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/interactions?limit=%d", limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var interactions []struct {
			ID        string `json:"id"`
			UserID    string `json:"userId"`
			Input     string `json:"input"`
			BestStyle string `json:"bestStyle"`
			AvgScore  int    `json:"avgScore"`
			CreatedAt string `json:"createdAt"`
		}
		if err := decodeJSON(resp, &interactions); err != nil {
			return err
		}

		if len(interactions) == 0 {
			fmt.Println("No interactions found.")
			return nil
		}

		for _, ix := range interactions {
			input := ix.Input
			if len(input) > 80 {
				input = input[:80] + "..."
			}
			fmt.Printf("%s  %s  %-12s  %3d  %s\n",
				colorize(colorCyan, shortID(ix.ID)),
				ix.CreatedAt,
				ix.BestStyle,
				ix.AvgScore,
				input,
			)
		}
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	interactionsCmd.Flags().Int("limit", 20, "maximum number of interactions to list")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
