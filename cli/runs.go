package cli

import (
	"github.com/spf13/cobra"

	"github.com/fedlens/runwatch/pkg/history"
	"github.com/fedlens/runwatch/pkg/sdk"
)

var (
	rwSDK     sdk.SDK
	histStore history.Store
)

// SetSDK wires the backend SDK used by the run commands.
func SetSDK(s sdk.SDK) {
	rwSDK = s
}

// SetHistory wires the local session history store.
func SetHistory(s history.Store) {
	histStore = s
}

func NewRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [status|delete|metadata|embeddings|divergence|importance]",
		Short: "Run artifacts",
		Long:  `Inspect and delete the server-side artifacts of a training run.`,
	}

	statusCmd := &cobra.Command{
		Use:   "status <run_id>",
		Short: "Check artifact readiness",
		Long:  `Check whether the derived artifacts of a run are computed.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			ready, err := rwSDK.RunReady(cmd.Context(), args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, map[string]bool{"ready": ready})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <run_id>",
		Short: "Delete run",
		Long:  `Delete everything the backend stored for a run. Idempotent server-side.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			if err := rwSDK.DeleteRun(cmd.Context(), args[0]); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logOKCmd(*cmd, "deleted "+args[0])
		},
	}

	metadataCmd := &cobra.Command{
		Use:   "metadata <run_id>",
		Short: "View run metadata",
		Long:  `View the recorded training configuration of a run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			md, err := rwSDK.TrainMetadata(cmd.Context(), args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, md)
		},
	}

	embeddingsCmd := &cobra.Command{
		Use:   "embeddings <run_id>",
		Short: "View patient embeddings",
		Long:  `View the projected patient embeddings computed for a run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			emb, err := rwSDK.Embeddings(cmd.Context(), args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, emb)
		},
	}

	divergenceCmd := &cobra.Command{
		Use:   "divergence <run_id>",
		Short: "View divergence history",
		Long:  `View the per-round client divergence metrics of a run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			div, err := rwSDK.DivergenceHistory(cmd.Context(), args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, div)
		},
	}

	var modelName string
	importanceCmd := &cobra.Command{
		Use:   "importance <run_id>",
		Short: "View feature importance",
		Long:  `View the top feature importances of the global or a client model.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			fi, err := rwSDK.FeatureImportance(cmd.Context(), args[0], modelName)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, fi)
		},
	}
	importanceCmd.Flags().StringVar(&modelName, "model", "global", "model to inspect (global or client_<n>)")

	var (
		offset uint64
		limit  uint64
	)
	historyCmd := &cobra.Command{
		Use:   "history [run_id]",
		Short: "View watched runs",
		Long:  `View locally recorded sessions of past watches, newest first.`,
		Run: func(cmd *cobra.Command, args []string) {
			switch len(args) {
			case 0:
				sessions, total, err := histStore.List(cmd.Context(), offset, limit)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, map[string]any{"total": total, "sessions": sessions})
			case 1:
				sess, err := histStore.Get(cmd.Context(), args[0])
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, sess)
			default:
				logUsageCmd(*cmd, cmd.Use)
			}
		},
	}
	historyCmd.Flags().Uint64Var(&offset, "offset", 0, "number of sessions to skip")
	historyCmd.Flags().Uint64Var(&limit, "limit", 10, "maximum number of sessions to list")

	cmd.AddCommand(statusCmd, deleteCmd, metadataCmd, embeddingsCmd, divergenceCmd, importanceCmd, historyCmd)

	return cmd
}

func NewPatientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patients",
		Short: "List patient ids",
		Long:  `List the patient ids known to the backend, the valid inputs for predict.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			ids, err := rwSDK.Patients(cmd.Context())
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, map[string][]string{"patient_ids": ids})
		},
	}
}

func NewPredictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predict <patient_id>",
		Short: "Predict outcome",
		Long:  `Run a single-shot prediction for one patient against the current global model.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			p, err := rwSDK.Predict(cmd.Context(), args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, p)
		},
	}
}
