package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fedlens/runwatch/pkg/mqtt"
)

var (
	pubsub      mqtt.PubSub
	followTopic string
)

// SetPubSub wires the broker connection and base topic used by the follow
// command.
func SetPubSub(ps mqtt.PubSub, baseTopic string) {
	pubsub = ps
	followTopic = baseTopic
}

// NewFollowCmd observes a session driven by another process through the
// MQTT progress feed: rounds as they stream, then the terminal readiness
// notification.
func NewFollowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "follow",
		Short: "Follow a session over MQTT",
		Long: `Follow the round stream and readiness notifications of a session watched
by another process, via the MQTT progress feed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if pubsub == nil {
				return errors.New("MQTT is not configured, set RUNWATCH_MQTT_ADDRESS")
			}

			ctx := cmd.Context()
			done := make(chan error, 1)
			finish := func(err error) {
				select {
				case done <- err:
				default:
				}
			}

			topics := map[string]mqtt.Handler{
				followTopic + "/rounds": func(_ string, msg map[string]any) error {
					round, _ := msg["round"].(float64)
					loss, _ := msg["global_loss"].(float64)
					fmt.Fprintf(cmd.OutOrStdout(), "%s round %d  global_loss=%.4f\n",
						color.CyanString("▸"), int(round), loss)

					return nil
				},
				followTopic + "/complete": func(_ string, msg map[string]any) error {
					fmt.Fprintf(cmd.OutOrStdout(), "%s training complete, run %v, waiting for artifacts\n",
						color.GreenString("✓"), msg["run_id"])

					return nil
				},
				followTopic + "/ready": func(_ string, msg map[string]any) error {
					fmt.Fprintf(cmd.OutOrStdout(), "%s artifacts ready for run %v\n",
						color.GreenString("✓"), msg["run_id"])
					finish(nil)

					return nil
				},
				followTopic + "/errors": func(_ string, msg map[string]any) error {
					message, _ := msg["message"].(string)
					finish(errors.New(message))

					return nil
				},
			}

			for topic, handler := range topics {
				if err := pubsub.Subscribe(ctx, topic, handler); err != nil {
					return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
				}
			}
			defer func() {
				for topic := range topics {
					if err := pubsub.Unsubscribe(context.Background(), topic); err != nil {
						logErrorCmd(*cmd, err)
					}
				}
			}()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case err := <-done:
				return err
			}
		},
	}
}
