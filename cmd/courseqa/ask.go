package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/courseqa/internal/models"
	"github.com/xhad/courseqa/pkg/image"
	"github.com/xhad/courseqa/pkg/rag"
)

var (
	askImage string
	askJSON  bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question, or start an interactive session without one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askImage, "image", "", "image to attach: file path, http(s) URL or base64")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	pipeline, vs, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer vs.Close()

	queries := &queryBuilder{image: askImage}
	if len(args) == 1 {
		q := queries.next(args[0])
		answer, err := withSpinner("Searching course material...", func() (models.ParsedAnswer, error) {
			return pipeline.Answer(ctx, q)
		})
		if err != nil {
			return err
		}
		return printAnswer(cmd, answer)
	}

	color.Cyan("\nAsk about the course (type 'exit' to quit)")
	if askImage != "" {
		color.Cyan("The image is attached to your first question.")
	}
	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if strings.EqualFold(question, "exit") {
			break
		}

		answer, err := withSpinner("Searching course material...", func() (models.ParsedAnswer, error) {
			return pipeline.Answer(ctx, queries.next(question))
		})
		if err != nil {
			color.Red("Error: %v\n", err)
			continue
		}
		if err := printAnswer(cmd, answer); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// queryBuilder attaches the --image flag to the first query only.
type queryBuilder struct {
	image string
}

func (b *queryBuilder) next(question string) models.Query {
	q := models.Query{Question: question}
	if b.image != "" {
		in := image.Classify(b.image)
		q.Image = &in
		b.image = ""
	}
	return q
}

func printAnswer(cmd *cobra.Command, answer models.ParsedAnswer) error {
	if askJSON {
		data, err := json.MarshalIndent(models.NewParsedAnswer(answer.Answer, answer.Links), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	color.New(color.FgCyan).Printf("\nAssistant: ")
	fmt.Println(answer.Answer)
	if len(answer.Links) == 0 || answer.Answer == rag.NoResultsMessage {
		return nil
	}
	color.New(color.Bold).Println("\nSources:")
	for i, link := range answer.Links {
		fmt.Printf("  %d. %s\n     %s\n", i+1, color.BlueString(link.URL), link.Text)
	}
	return nil
}
