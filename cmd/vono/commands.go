package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/vono/internal/api"
	"github.com/kalambet/vono/internal/audio"
	"github.com/kalambet/vono/internal/config"
	"github.com/kalambet/vono/internal/credentials"
	"github.com/kalambet/vono/internal/item"
	"github.com/kalambet/vono/internal/openai"
)

// --- add ---

var addCmd = &cobra.Command{
	Use:   "add <audio-file>",
	Short: "Process an audio file into a voice item",
	Long: `Process an audio file into a voice item.

The file is sent to the running daemon, transcribed, and structured by
intent. Supported formats: wav, webm, ogg, mp3, m4a, flac.

Examples:
  vono add memo.m4a
  vono add --duration 42.5 standup.wav`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		duration, _ := cmd.Flags().GetFloat64("duration")

		mimeType := audio.MIMEForExtension(filepath.Ext(path))
		if mimeType == "" {
			return fmt.Errorf("unsupported audio format %q", filepath.Ext(path))
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"audio":     base64.StdEncoding.EncodeToString(data),
			"mime_type": mimeType,
		}
		if duration > 0 {
			req["duration_seconds"] = duration
		}

		printStep("Processing %s...", filepath.Base(path))
		resp, err := client.post(cmd.Context(), "/recordings", req)
		if err != nil {
			return err
		}

		var v item.VoiceItem
		if err := decodeJSON(resp, &v); err != nil {
			explainAPIError(err)
			return err
		}

		printItem(&v)
		printSuccess("Saved item %s", v.ID)
		return nil
	},
}

func init() {
	addCmd.Flags().Float64("duration", 0, "recording duration in seconds, when known")
}

// explainAPIError prints the follow-up a failed recording deserves:
// the retry countdown for rate limits, the queue affordance when the
// audio was preserved.
func explainAPIError(err error) {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		return
	}
	if apiErr.Code == "rate_limited" && apiErr.RetryAfterMS > 0 {
		wait := time.Duration(apiErr.RetryAfterMS) * time.Millisecond
		printWarning("Rate limited; next slot in %s", wait.Round(time.Second))
	}
	if apiErr.FailedRecordingID != "" {
		printWarning("The recording was kept in the failed queue")
		printStep("Retry later with: vono failed retry %s", apiErr.FailedRecordingID)
	}
}

// --- items ---

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Browse stored voice items",
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent items",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return listItems(cmd.Context(), fmt.Sprintf("/items?limit=%d", limit))
	},
}

var itemsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search items by title, transcript, summary, or tag",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		query := strings.Join(args, " ")
		return listItems(cmd.Context(),
			fmt.Sprintf("/items?q=%s&limit=%d", url.QueryEscape(query), limit))
	},
}

func listItems(ctx context.Context, path string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	resp, err := client.get(ctx, path)
	if err != nil {
		return err
	}

	var items []item.VoiceItem
	if err := decodeJSON(resp, &items); err != nil {
		return err
	}

	if len(items) == 0 {
		fmt.Println("No items found.")
		return nil
	}

	for _, v := range items {
		fmt.Println(itemLine(&v))
	}
	return nil
}

var itemsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/items/"+args[0])
		if err != nil {
			return err
		}

		var v item.VoiceItem
		if err := decodeJSON(resp, &v); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		}

		printItem(&v)
		if v.OriginalTranscript != "" {
			fmt.Printf("\n%s\n  %s\n", colorize(colorBold, "Transcript"), v.OriginalTranscript)
		}
		return nil
	},
}

var itemsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/items/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted item %s", args[0])
		return nil
	},
}

func init() {
	itemsListCmd.Flags().Int("limit", 20, "maximum number of items to list")
	itemsSearchCmd.Flags().Int("limit", 20, "maximum number of results")
	itemsShowCmd.Flags().Bool("json", false, "print the raw item JSON")
	itemsCmd.AddCommand(itemsListCmd)
	itemsCmd.AddCommand(itemsSearchCmd)
	itemsCmd.AddCommand(itemsShowCmd)
	itemsCmd.AddCommand(itemsDeleteCmd)
}

// --- failed ---

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "Inspect and retry failed recordings",
}

var failedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued failed recordings",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/failed")
		if err != nil {
			return err
		}

		var entries []api.FailedSummary
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No failed recordings.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %s  %s  retries=%d  %s\n",
				colorize(colorCyan, shortID(e.ID)),
				e.FailedAt.Format(time.RFC3339),
				colorize(colorYellow, string(e.ErrorType)),
				e.RetryCount,
				truncate(e.ErrorMessage, 60),
			)
		}
		return nil
	},
}

var failedRetryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Re-run failed recordings through the pipeline",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		switch {
		case all && len(args) > 0:
			return fmt.Errorf("--all cannot be combined with an id")
		case !all && len(args) == 0:
			return fmt.Errorf("an id or --all is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if all {
			return retryAllFailed(cmd.Context(), client)
		}

		resp, err := client.post(cmd.Context(), "/failed/"+args[0]+"/retry", nil)
		if err != nil {
			return err
		}

		var v item.VoiceItem
		if err := decodeJSON(resp, &v); err != nil {
			explainAPIError(err)
			return err
		}

		printItem(&v)
		printSuccess("Recovered item %s", v.ID)
		return nil
	},
}

func retryAllFailed(ctx context.Context, client *apiClient) error {
	printStep("Retrying all failed recordings...")
	resp, err := client.post(ctx, "/failed/retry", nil)
	if err != nil {
		return err
	}

	var summary api.RetrySummary
	if err := decodeJSON(resp, &summary); err != nil {
		return err
	}

	if summary.Succeeded > 0 {
		printSuccess("%d recovered", summary.Succeeded)
	}
	if summary.Failed > 0 {
		printError("%d failed again", summary.Failed)
	}
	if summary.Skipped > 0 {
		printWarning("%d skipped", summary.Skipped)
		if summary.RetryAfterMS > 0 {
			wait := time.Duration(summary.RetryAfterMS) * time.Millisecond
			printStep("Rate limited; resume in %s with: vono failed retry --all", wait.Round(time.Second))
		}
	}
	if summary.Succeeded+summary.Failed+summary.Skipped == 0 {
		fmt.Println("No failed recordings.")
	}
	return nil
}

var failedDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Discard a failed recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/failed/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted failed recording %s", args[0])
		return nil
	},
}

func init() {
	failedRetryCmd.Flags().Bool("all", false, "retry every queued recording")
	failedCmd.AddCommand(failedListCmd)
	failedCmd.AddCommand(failedRetryCmd)
	failedCmd.AddCommand(failedDeleteCmd)
}

// --- key ---

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the provider API key",
}

var keySetCmd = &cobra.Command{
	Use:   "set <key>",
	Short: "Store the API key in the platform secret store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := credentials.SetAPIKey(credentials.NewKeychain(), args[0]); err != nil {
			return err
		}
		printSuccess("API key stored")
		return nil
	},
}

var keyCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configured API key against the provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		kc := credentials.NewKeychain()
		resolver := credentials.NewResolver(credentials.DefaultSources(kc, config.NewBackend())...)
		key, err := resolver.Resolve()
		if err != nil {
			return err
		}

		printStep("Checking key against %s...", cfg.OpenAI.BaseURL)
		client := openai.NewClientWithBaseURL(cfg.OpenAI.BaseURL)
		if err := client.ValidateKey(cmd.Context(), key); err != nil {
			return fmt.Errorf("key check failed: %w", err)
		}

		printSuccess("API key is valid")
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keySetCmd)
	keyCmd.AddCommand(keyCheckCmd)
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

		for _, k := range config.ShowAll(cfg) {
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

// --- item rendering ---

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// itemLine renders one listing row: short id, timestamp, intent, title.
func itemLine(v *item.VoiceItem) string {
	return fmt.Sprintf("%s  %s  %-8s  %s",
		colorize(colorCyan, shortID(v.ID)),
		v.CreatedAt.Format("2006-01-02 15:04"),
		colorize(colorBold, string(v.Intent)),
		v.Title,
	)
}

func todoLine(t item.TodoEntry) string {
	box := "[ ]"
	if t.Done {
		box = "[x]"
	}
	if t.Due != "" {
		return fmt.Sprintf("%s %s (due %s)", box, t.Task, t.Due)
	}
	return fmt.Sprintf("%s %s", box, t.Task)
}

// printItem pretty-prints a full item to stdout.
func printItem(v *item.VoiceItem) {
	fmt.Printf("\n%s  %s\n", colorize(colorBold, v.Title), colorize(colorCyan, "["+string(v.Intent)+"]"))
	if len(v.Tags) > 0 {
		fmt.Printf("  Tags: %s\n", strings.Join(v.Tags, ", "))
	}
	if v.Summary != "" {
		fmt.Printf("  %s\n", v.Summary)
	}
	for _, fact := range v.KeyFacts {
		fmt.Printf("  • %s\n", fact)
	}

	switch v.Intent {
	case item.IntentTodo:
		for _, t := range v.Data.Todos {
			fmt.Printf("  %s\n", todoLine(t))
		}
	case item.IntentResearch:
		if v.Data.ResearchAnswer != nil {
			fmt.Printf("  %s\n", *v.Data.ResearchAnswer)
		}
	case item.IntentDraft:
		if v.Data.DraftContent != nil {
			fmt.Printf("  %s\n", truncate(*v.Data.DraftContent, 500))
		}
	}
}
