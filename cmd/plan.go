package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"trip-agent/internal/app"
	"trip-agent/pkg/session"
	"trip-agent/pkg/workflow"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Start a trip planning session",
	Long: `Start a planning session and run it until it needs an answer or finishes.

With --interactive the command keeps asking on the terminal until the session
completes; otherwise it prints the session id to resume later.

Examples:
  trip-agent plan --from Beijing --to Hangzhou --date 2025-05-01 --days 3
  trip-agent plan --to Chengdu --days 4 --people 2 --budget "5000 CNY" -i`,
	RunE: runPlan,
}

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Answer the pending question of a session and continue it",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

var showCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show one session, or list recent sessions",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShow,
}

func init() {
	planCmd.Flags().String("from", "", "origin city")
	planCmd.Flags().String("to", "", "destination city (required)")
	planCmd.Flags().String("date", "", "departure date")
	planCmd.Flags().Int("days", 0, "trip length in days")
	planCmd.Flags().Int("people", 0, "number of travellers")
	planCmd.Flags().String("budget", "", "budget")
	planCmd.Flags().String("preferences", "", "free-form preferences")
	planCmd.Flags().BoolP("interactive", "i", false, "answer questions on the terminal")

	resumeCmd.Flags().StringP("answer", "a", "", "free-text answer")
	resumeCmd.Flags().StringSlice("option", nil, "selected option ids")
	resumeCmd.Flags().BoolP("interactive", "i", false, "keep answering on the terminal")

	showCmd.Flags().Int("limit", 20, "sessions to list")
	showCmd.Flags().Bool("json", false, "print the full session state as JSON")
}

// withApp builds the application for one command and tears it down after.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	log, err := app.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.ConfigFromViper(), log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func runPlan(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	trip := workflow.TripRequest{}
	trip.Origin, _ = flags.GetString("from")
	trip.Destination, _ = flags.GetString("to")
	trip.Date, _ = flags.GetString("date")
	trip.Days, _ = flags.GetInt("days")
	trip.People, _ = flags.GetInt("people")
	trip.Budget, _ = flags.GetString("budget")
	trip.Preferences, _ = flags.GetString("preferences")
	interactive, _ := flags.GetBool("interactive")

	if strings.TrimSpace(trip.Destination) == "" {
		return fmt.Errorf("--to is required")
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		state, err := a.Service.Start(ctx, trip)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printState(out, state)
		if interactive {
			return converse(ctx, a.Service, state, cmd.InOrStdin(), out)
		}
		return nil
	})
}

func runResume(cmd *cobra.Command, args []string) error {
	answer, _ := cmd.Flags().GetString("answer")
	options, _ := cmd.Flags().GetStringSlice("option")
	interactive, _ := cmd.Flags().GetBool("interactive")

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		state, err := a.Service.Resume(ctx, args[0], session.HumanResponse{Text: answer, SelectedOptions: options})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printState(out, state)
		if interactive {
			return converse(ctx, a.Service, state, cmd.InOrStdin(), out)
		}
		return nil
	})
}

func runShow(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	limit, _ := cmd.Flags().GetInt("limit")
	out := cmd.OutOrStdout()

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if len(args) == 0 {
			sessions, total, err := a.Service.List(ctx, limit, 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d sessions\n", total)
			for _, s := range sessions {
				fmt.Fprintf(out, "%s  %-13s %-18s %s  %s\n", s.ID, s.Status, s.CurrentNode, s.Destination, s.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		}
		state, err := a.Service.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(state)
		}
		printState(out, state)
		return nil
	})
}

// converse answers pending questions from in until the session completes
// or in is exhausted.
func converse(ctx context.Context, svc *session.Service, state *workflow.State, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for state.Status == workflow.StatusWaitingUser {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintf(out, "\nSession %s paused. Resume with: trip-agent resume %s -a \"...\"\n", state.SessionID, state.SessionID)
			return scanner.Err()
		}
		resp := parseAnswer(scanner.Text(), state.InterventionRequest)
		next, err := svc.Resume(ctx, state.SessionID, resp)
		if err != nil {
			return err
		}
		state = next
		printState(out, state)
	}
	return nil
}

// parseAnswer reads option ids for choice questions ("a,c") and free text
// otherwise. Unknown ids fall back to free text.
func parseAnswer(line string, req *workflow.InterventionRequest) session.HumanResponse {
	line = strings.TrimSpace(line)
	if req == nil || len(req.Options) == 0 {
		return session.HumanResponse{Text: line}
	}
	known := map[string]bool{}
	for _, o := range req.Options {
		known[o.ID] = true
	}
	var ids []string
	for _, part := range strings.Split(line, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !known[part] {
			return session.HumanResponse{Text: line}
		}
		ids = append(ids, part)
	}
	return session.HumanResponse{SelectedOptions: ids}
}

func printState(out io.Writer, s *workflow.State) {
	fmt.Fprintf(out, "Session %s: %s (node %s, iteration %d)\n", s.SessionID, s.Status, s.CurrentNode, s.Iteration)

	switch s.Status {
	case workflow.StatusWaitingUser:
		if req := s.InterventionRequest; req != nil {
			if lines := req.CurrentPlan; len(lines) > 0 {
				fmt.Fprintln(out, "\nCurrent plan:")
				for _, l := range lines {
					fmt.Fprintf(out, "  %s\n", l)
				}
			}
			fmt.Fprintf(out, "\n❓ %s\n", req.Message)
			for _, o := range req.Options {
				fmt.Fprintf(out, "   [%s] %s\n", o.ID, o.Text)
			}
			if req.QuestionType == workflow.QuestionMultipleChoice {
				fmt.Fprintln(out, "   (several ids separated by commas)")
			}
		}
	case workflow.StatusCompleted:
		if s.Replan != nil {
			fmt.Fprintf(out, "\nFinal plan:\n%s\n", s.Replan.String())
		}
		if s.AmusementInfo != nil {
			data, err := json.MarshalIndent(s.AmusementInfo, "", "  ")
			if err == nil {
				fmt.Fprintf(out, "\nItinerary:\n%s\n", data)
			}
		}
	}
}
