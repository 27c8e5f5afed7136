package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/patternd/internal/patternbank"
)

var (
	observeProject string

	feedbackProject  string
	feedbackPattern  string
	feedbackUser     string
	feedbackAction   string
	feedbackRating   int
	feedbackComments string

	suggestProject   string
	suggestComponent string
	suggestFramework string
	suggestTheme     string
	suggestBrandPack string
	suggestFileType  string
)

// observeCmd ingests interaction events from a file or stdin.
var observeCmd = &cobra.Command{
	Use:   "observe [file]",
	Short: "Ingest interaction events from a file or stdin",
	Long: `Ingest interaction events and fold them into learned patterns.

Input is a JSON array or a stream of JSON objects, one interaction each:

  {"action": "accept", "component_type": "button",
   "enhancement": {"type": "spacing"}, "context": {"framework": "react"}}

Examples:
  # Ingest a batch file
  patternd observe --project proj_1 events.json

  # Pipe from the transform engine
  transform-engine --emit-events | patternd observe --project proj_1 -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runObserve,
}

// feedbackCmd records one feedback event for a pattern.
var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record user feedback for a pattern",
	Long: `Record one feedback event and apply the incremental confidence update.

Examples:
  # Record an acceptance
  patternd feedback --project proj_1 --pattern 9f3a... --action accept

  # Record a rejection with a rating and comment
  patternd feedback --project proj_1 --pattern 9f3a... --action reject \
    --rating 2 --comments "wrong spacing scale"`,
	RunE: runFeedback,
}

// suggestCmd prints ranked suggestions for a component.
var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Print ranked suggestions for a component type",
	Long: `Print confidence-ranked, action-tagged suggestions as JSON.

Examples:
  # Suggestions for buttons in a React project
  patternd suggest --project proj_1 --component button --framework react`,
	RunE: runSuggest,
}

func init() {
	observeCmd.Flags().StringVar(&observeProject, "project", "", "project ID (required)")
	_ = observeCmd.MarkFlagRequired("project")

	feedbackCmd.Flags().StringVar(&feedbackProject, "project", "", "project ID (required)")
	feedbackCmd.Flags().StringVar(&feedbackPattern, "pattern", "", "pattern ID (required)")
	feedbackCmd.Flags().StringVar(&feedbackUser, "user", "", "user ID")
	feedbackCmd.Flags().StringVar(&feedbackAction, "action", "", "accept, reject, modify, manual_apply, or ignore (required)")
	feedbackCmd.Flags().IntVar(&feedbackRating, "rating", 0, "optional 1-5 rating")
	feedbackCmd.Flags().StringVar(&feedbackComments, "comments", "", "optional free-form comment")
	_ = feedbackCmd.MarkFlagRequired("project")
	_ = feedbackCmd.MarkFlagRequired("pattern")
	_ = feedbackCmd.MarkFlagRequired("action")

	suggestCmd.Flags().StringVar(&suggestProject, "project", "", "project ID (required)")
	suggestCmd.Flags().StringVar(&suggestComponent, "component", "", "component type (required)")
	suggestCmd.Flags().StringVar(&suggestFramework, "framework", "", "current framework")
	suggestCmd.Flags().StringVar(&suggestTheme, "theme", "", "current theme")
	suggestCmd.Flags().StringVar(&suggestBrandPack, "brand-pack", "", "current brand pack ID")
	suggestCmd.Flags().StringVar(&suggestFileType, "file-type", "", "current file type")
	_ = suggestCmd.MarkFlagRequired("project")
	_ = suggestCmd.MarkFlagRequired("component")
}

// runObserve handles the observe command.
func runObserve(cmd *cobra.Command, args []string) error {
	var input io.Reader
	if len(args) == 0 || args[0] == "-" {
		input = os.Stdin
	} else {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		input = f
	}

	interactions, err := decodeInteractions(input)
	if err != nil {
		return err
	}
	if len(interactions) == 0 {
		return fmt.Errorf("no interactions to observe")
	}

	env, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	observed, discarded := 0, 0
	for _, in := range interactions {
		p, err := env.service.ObserveInteraction(cmd.Context(), observeProject, in)
		if err != nil {
			return err
		}
		if p == nil {
			discarded++
			continue
		}
		observed++
	}

	fmt.Fprintf(os.Stderr, "[patternd] Observed %d interaction(s), discarded %d\n", observed, discarded)
	return nil
}

// decodeInteractions accepts either a JSON array or a stream of objects.
func decodeInteractions(r io.Reader) ([]patternbank.Interaction, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var batch []patternbank.Interaction
	if err := json.Unmarshal(content, &batch); err == nil {
		return batch, nil
	}

	dec := json.NewDecoder(bytes.NewReader(content))
	for {
		var in patternbank.Interaction
		if err := dec.Decode(&in); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to decode interaction: %w", err)
		}
		batch = append(batch, in)
	}
	return batch, nil
}

// runFeedback handles the feedback command.
func runFeedback(cmd *cobra.Command, args []string) error {
	action := patternbank.FeedbackAction(feedbackAction)
	if !action.Valid() {
		return fmt.Errorf("unknown action %q (want accept, reject, modify, manual_apply, or ignore)", feedbackAction)
	}

	env, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	// RecordFeedback stamps a zero timestamp with the service clock.
	fb, err := patternbank.NewFeedback(feedbackProject, feedbackPattern, action, time.Time{})
	if err != nil {
		return err
	}
	fb.UserID = feedbackUser
	fb.Rating = feedbackRating
	fb.Comments = feedbackComments

	if err := env.service.RecordFeedback(cmd.Context(), fb); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "[patternd] Recorded %s for pattern %s\n", action, feedbackPattern)
	return nil
}

// runSuggest handles the suggest command.
func runSuggest(cmd *cobra.Command, args []string) error {
	env, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	suggestions, err := env.service.Suggestions(cmd.Context(), suggestProject, suggestComponent, patternbank.ContextFactors{
		Framework:   suggestFramework,
		Theme:       suggestTheme,
		BrandPackID: suggestBrandPack,
		FileType:    suggestFileType,
	})
	if err != nil {
		return err
	}

	return printJSON(suggestions)
}
