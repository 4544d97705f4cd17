package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fedlens/runwatch/orchestrator"
	"github.com/fedlens/runwatch/run"
)

var orch orchestrator.Service

// SetOrchestrator wires the session service used by the watch command.
func SetOrchestrator(svc orchestrator.Service) {
	orch = svc
}

func NewWatchCmd() *cobra.Command {
	var (
		numClients   int
		numRounds    int
		deleteOnExit bool
		noPrompt     bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Start and follow a training run",
		Long: `Start a federated-training run, stream its rounds, and wait until the
derived artifacts are ready.

Examples:
  # Start a run with 3 clients for 5 rounds
  runwatch watch --clients 3 --rounds 5

  # Prompt interactively and delete the run when done
  runwatch watch --delete-on-exit`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if numClients <= 0 || numRounds <= 0 {
				if noPrompt {
					return errors.New("--clients and --rounds are required with --no-prompt")
				}
				if err := promptTrainConfig(&numClients, &numRounds); err != nil {
					return err
				}
			}

			printer := newProgressPrinter(cmd)
			orch.Subscribe(printer)

			// The readiness timer started inside StartTraining outlives the
			// call, so the group must not cancel ctx when Wait returns.
			ctx := cmd.Context()
			var g errgroup.Group
			g.Go(func() error {
				return orch.StartTraining(ctx, run.TrainConfig{
					NumClients: numClients,
					NumRounds:  numRounds,
				})
			})

			err := g.Wait()
			if err == nil {
				err = waitTerminal(ctx, cmd, printer, noPrompt)
			}
			interrupted := errors.Is(err, context.Canceled)

			recordSession(cmd)

			// A ready run is kept for the collaborator endpoints unless the
			// caller opted out; a failed or interrupted one has no artifacts
			// worth keeping, so teardown fires the best-effort deletion.
			if err != nil || deleteOnExit {
				if shutdownErr := orch.Shutdown(context.Background()); shutdownErr != nil {
					logErrorCmd(*cmd, shutdownErr)
				}
			}

			if err != nil && !interrupted {
				return err
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&numClients, "clients", 0, "number of federated clients")
	cmd.Flags().IntVar(&numRounds, "rounds", 0, "number of training rounds")
	cmd.Flags().BoolVar(&deleteOnExit, "delete-on-exit", false, "delete the run server-side when the watch ends")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "fail instead of prompting interactively")

	return cmd
}

// recordSession snapshots the session into the local history store so the
// run stays inspectable after the process exits.
func recordSession(cmd *cobra.Command) {
	if histStore == nil {
		return
	}

	sess, err := orch.Session(context.Background())
	if err != nil {
		return
	}

	if err := histStore.Save(context.Background(), sess); err != nil {
		logErrorCmd(*cmd, err)
	}
}

// waitTerminal blocks until the readiness poll reaches a terminal state,
// offering a retry after an exhausted poll.
func waitTerminal(ctx context.Context, cmd *cobra.Command, printer *progressPrinter, noPrompt bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-printer.results:
			if res == nil {
				return nil
			}
			if noPrompt || !confirmRetry() {
				return res
			}
			if err := orch.Retry(ctx); err != nil {
				logErrorCmd(*cmd, err)

				return res
			}
		}
	}
}

func confirmRetry() bool {
	var retry bool
	confirm := huh.NewConfirm().
		Title("Artifacts are not ready yet. Retry the readiness poll?").
		Value(&retry)
	if err := confirm.Run(); err != nil {
		return false
	}

	return retry
}

func promptTrainConfig(numClients, numRounds *int) error {
	var clientsStr, roundsStr string

	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Number of clients").
			Value(&clientsStr).
			Validate(validatePositiveInt),
		huh.NewInput().
			Title("Number of rounds").
			Value(&roundsStr).
			Validate(validatePositiveInt),
	))
	if err := form.Run(); err != nil {
		return err
	}

	*numClients, _ = strconv.Atoi(clientsStr)
	*numRounds, _ = strconv.Atoi(roundsStr)

	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return errors.New("enter a positive integer")
	}

	return nil
}

// progressPrinter renders the live session feed and delivers each terminal
// notification (nil for ready, an error for a surfaced failure) to the
// watch loop.
type progressPrinter struct {
	cmd     *cobra.Command
	results chan error
}

var _ orchestrator.Subscriber = (*progressPrinter)(nil)

func newProgressPrinter(cmd *cobra.Command) *progressPrinter {
	return &progressPrinter{
		cmd:     cmd,
		results: make(chan error, 8),
	}
}

func (p *progressPrinter) OnRound(rec run.RoundRecord) {
	fmt.Fprintf(p.cmd.OutOrStdout(), "%s round %d  global_loss=%.4f  clients=%d\n",
		color.CyanString("▸"), rec.Round, rec.GlobalLoss, len(rec.ClientTrain))
}

func (p *progressPrinter) OnTrainingComplete(runID string) {
	fmt.Fprintf(p.cmd.OutOrStdout(), "%s training complete, run %s, waiting for artifacts\n",
		color.GreenString("✓"), runID)
}

func (p *progressPrinter) OnReady(runID string) {
	fmt.Fprintf(p.cmd.OutOrStdout(), "%s artifacts ready for run %s\n", color.GreenString("✓"), runID)

	select {
	case p.results <- nil:
	default:
	}
}

func (p *progressPrinter) OnError(msg string) {
	fmt.Fprintln(p.cmd.ErrOrStderr(), errColor.Sprint(msg))

	select {
	case p.results <- errors.New(msg):
	default:
	}
}
