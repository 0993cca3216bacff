package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/higress-group/newsrag"
	"github.com/higress-group/newsrag/stream"
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Answer one question and print the result",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		c, err := newsrag.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		query := strings.Join(args, " ")
		convID, _ := cmd.Flags().GetString("conversation")
		asJSON, _ := cmd.Flags().GetBool("json")
		streaming, _ := cmd.Flags().GetBool("stream")
		cc := newsrag.ConversationContext{ConversationID: convID}

		var resp *newsrag.Response
		if streaming {
			resp, err = c.HandleStream(ctx, query, cc, stream.SinkFunc(func(e stream.Event) error {
				switch e.Type {
				case stream.EventStreamChunk:
					fmt.Print(e.Chunk)
				case stream.EventStreamReset:
					fmt.Println("\n--- " + e.Message)
				}
				return nil
			}))
			fmt.Println()
		} else {
			resp, err = c.Handle(ctx, query, cc)
		}
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		if !streaming {
			fmt.Println(resp.Answer)
		}
		fmt.Printf("\nroute: %s  conversation: %s\n", resp.Route, resp.ConversationID)
		for i, s := range resp.Sources {
			fmt.Printf("[%d] %s %s\n", i+1, s.Title, s.URL)
		}
		if !resp.Success {
			return fmt.Errorf("query failed: %s", resp.Error)
		}
		return nil
	},
}

var routeCmd = &cobra.Command{
	Use:   "route <query>",
	Short: "Print the routing decision for a query without executing it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c, err := newsrag.NewClientWith(cfg, newsrag.Deps{LLM: offlineLLM{}})
		if err != nil {
			return err
		}
		defer c.Close()
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(c.Decide(strings.Join(args, " ")))
	},
}

func init() {
	askCmd.Flags().String("conversation", "", "conversation id to continue")
	askCmd.Flags().Bool("json", false, "print the full response as JSON")
	askCmd.Flags().Bool("stream", false, "print the answer as it is generated")
	rootCmd.AddCommand(askCmd, routeCmd)
}
