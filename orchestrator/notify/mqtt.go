// Package notify forwards session notifications to collaborators that live
// outside the process, over MQTT topics.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/fedlens/runwatch/orchestrator"
	"github.com/fedlens/runwatch/pkg/mqtt"
	"github.com/fedlens/runwatch/run"
)

const publishTimeout = 5 * time.Second

var _ orchestrator.Subscriber = (*MQTTNotifier)(nil)

// MQTTNotifier publishes the live progress feed and the terminal
// notifications of a session. Publish failures are logged and dropped; the
// feed is advisory and must never stall the orchestrator.
type MQTTNotifier struct {
	pubsub    mqtt.PubSub
	baseTopic string
	logger    *slog.Logger
}

func NewMQTT(pubsub mqtt.PubSub, baseTopic string, logger *slog.Logger) *MQTTNotifier {
	return &MQTTNotifier{
		pubsub:    pubsub,
		baseTopic: baseTopic,
		logger:    logger,
	}
}

func (n *MQTTNotifier) OnRound(rec run.RoundRecord) {
	n.publish(n.baseTopic+"/rounds", rec)
}

func (n *MQTTNotifier) OnTrainingComplete(runID string) {
	n.publish(n.baseTopic+"/complete", map[string]string{"run_id": runID})
}

func (n *MQTTNotifier) OnReady(runID string) {
	n.publish(n.baseTopic+"/ready", map[string]string{"run_id": runID})
}

func (n *MQTTNotifier) OnError(msg string) {
	n.publish(n.baseTopic+"/errors", map[string]string{"message": msg})
}

func (n *MQTTNotifier) publish(topic string, msg any) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := n.pubsub.Publish(ctx, topic, msg); err != nil {
		n.logger.Warn("Failed to publish session notification",
			slog.String("topic", topic),
			slog.Any("error", err))
	}
}
