package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/huangdanqi/pawprint/internal/config"
	"github.com/huangdanqi/pawprint/internal/diary"
	"github.com/huangdanqi/pawprint/internal/event"
	"github.com/huangdanqi/pawprint/internal/events"
)

// Intake accepts parsed device events for asynchronous processing.
// The pipeline satisfies it; tests substitute a recorder.
type Intake interface {
	Submit(ev *event.Event) error
}

// Stats counts inbound device traffic.
type Stats struct {
	Received int64 `json:"received"`
	Dropped  int64 `json:"dropped"`
}

// Link owns the broker connection for one device: the events
// subscription feeding the pipeline, the retained pairing document,
// availability birth/will, and per-entry diary notifications.
type Link struct {
	cfg         config.MQTTConfig
	deviceName  string
	instanceID  string
	apiAddr     string
	defaultUser string
	tax         *event.Taxonomy
	intake      Intake
	bus         *events.Bus
	logger      *slog.Logger
	cm          *autopaho.ConnectionManager

	received atomic.Int64
	dropped  atomic.Int64
}

// LinkOptions carries the identity fields the link publishes in its
// pairing document.
type LinkOptions struct {
	DeviceName  string
	InstanceID  string
	APIAddr     string
	DefaultUser string
}

// NewLink creates a Link but does not connect. Call [Link.Start] to
// begin the connection.
func NewLink(cfg config.MQTTConfig, opts LinkOptions, tax *event.Taxonomy, intake Intake, bus *events.Bus, logger *slog.Logger) *Link {
	if logger == nil {
		logger = slog.Default()
	}
	return &Link{
		cfg:         cfg,
		deviceName:  opts.DeviceName,
		instanceID:  opts.InstanceID,
		apiAddr:     opts.APIAddr,
		defaultUser: opts.DefaultUser,
		tax:         tax,
		intake:      intake,
		bus:         bus,
		logger:      logger.With("component", "mqtt"),
	}
}

// Start connects to the broker and returns once the connection
// manager is running; autopaho keeps retrying in the background from
// then on. On every (re-)connect it subscribes to the device events
// filter and re-publishes the retained pairing document and the
// "online" availability message.
func (l *Link) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(l.cfg.URL)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := l.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: l.cfg.Username,
		ConnectPassword: []byte(l.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			l.logger.Info("mqtt connected to broker", "broker", l.cfg.URL)
			l.subscribe(ctx, cm)
			l.publishPairing(ctx, cm)
			l.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			l.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "pawprint-" + l.deviceName,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					l.handleMessage(ctx, pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	l.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		l.logger.Warn("mqtt initial connection timed out, retrying in background", "error", err)
	}
	return nil
}

// Stop publishes an "offline" availability message before closing the
// connection. The context bounds how long the farewell may take.
func (l *Link) Stop(ctx context.Context) error {
	if l.cm == nil {
		return nil
	}
	l.publishAvailability(ctx, l.cm, "offline")
	return l.cm.Disconnect(ctx)
}

// AwaitConnection blocks until the broker connection is established or
// ctx expires. Used by the health monitor's broker probe.
func (l *Link) AwaitConnection(ctx context.Context) error {
	if l.cm == nil {
		return fmt.Errorf("mqtt link not started")
	}
	return l.cm.AwaitConnection(ctx)
}

// Stats returns inbound message counters.
func (l *Link) Stats() Stats {
	return Stats{
		Received: l.received.Load(),
		Dropped:  l.dropped.Load(),
	}
}

// --- Topic helpers ---

func (l *Link) baseTopic() string {
	return l.cfg.TopicPrefix + "/" + l.deviceName
}

func (l *Link) availabilityTopic() string {
	return l.baseTopic() + "/availability"
}

func (l *Link) eventsFilter() string {
	return l.baseTopic() + "/events/#"
}

func (l *Link) pairingTopic() string {
	return l.baseTopic() + "/pairing"
}

func (l *Link) diaryTopic() string {
	return l.baseTopic() + "/diary"
}

// --- Inbound ---

// handleMessage parses one device payload and hands it to the
// pipeline. Malformed payloads are dropped and counted, never
// propagated; a misbehaving device must not wedge the subscription.
func (l *Link) handleMessage(ctx context.Context, topic string, payload []byte) {
	l.received.Add(1)

	name, err := ParseEventTopic(topic, l.baseTopic())
	if err != nil {
		l.drop(topic, err)
		return
	}
	ev, err := ParseEventPayload(l.tax, name, l.defaultUser, payload)
	if err != nil {
		l.drop(topic, err)
		return
	}

	l.bus.Emit(events.SourceMQTT, events.KindDeviceMessage, map[string]any{
		"topic":      topic,
		"event_name": ev.EventName,
		"event_id":   ev.EventID,
	})

	if err := l.intake.Submit(ev); err != nil {
		l.drop(topic, err)
		return
	}
	l.logger.Debug("device event queued",
		"topic", topic, "event_name", ev.EventName, "event_id", ev.EventID)
}

func (l *Link) drop(topic string, err error) {
	l.dropped.Add(1)
	l.logger.Warn("device message dropped", "topic", topic, "error", err)
}

func (l *Link) subscribe(ctx context.Context, cm *autopaho.ConnectionManager) {
	filter := l.eventsFilter()
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: filter, QoS: 1},
		},
	}); err != nil {
		l.logger.Warn("mqtt subscribe failed", "filter", filter, "error", err)
		return
	}
	l.logger.Info("mqtt subscribed", "filter", filter)
}

// --- Outbound ---

// pairingDocument is the retained payload a companion app reads to
// find the daemon. The same fields back the /api/pair QR code.
type pairingDocument struct {
	InstanceID string `json:"instance_id"`
	DeviceName string `json:"device_name"`
	APIAddr    string `json:"api_addr"`
}

func (l *Link) publishPairing(ctx context.Context, cm *autopaho.ConnectionManager) {
	payload, err := json.Marshal(pairingDocument{
		InstanceID: l.instanceID,
		DeviceName: l.deviceName,
		APIAddr:    l.apiAddr,
	})
	if err != nil {
		l.logger.Error("mqtt marshal pairing document", "error", err)
		return
	}

	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   l.pairingTopic(),
		Payload: payload,
		QoS:     1,
		Retain:  true,
	}); err != nil {
		l.logger.Warn("mqtt pairing publish failed", "error", err)
	} else {
		l.logger.Debug("mqtt pairing document published", "topic", l.pairingTopic())
	}
}

func (l *Link) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   l.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		l.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		l.logger.Info("mqtt availability published", "status", status)
	}
}

// entryNotification is the per-entry payload pushed to the diary
// topic so the app can surface new entries without polling.
type entryNotification struct {
	EntryID     string    `json:"entry_id"`
	UserID      string    `json:"user_id"`
	Timestamp   time.Time `json:"timestamp"`
	EventName   string    `json:"event_name"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	EmotionTags []string  `json:"emotion_tags"`
	Provider    string    `json:"provider"`
}

// RunNotifier follows the bus and pushes every stored entry to the
// diary topic. It blocks until ctx is cancelled. The store lookup runs
// here rather than threading the full entry through the bus payload.
func (l *Link) RunNotifier(ctx context.Context, store *diary.Store) {
	if l.bus == nil {
		return
	}
	ch := l.bus.Subscribe(64)
	defer l.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if evt.Kind != events.KindEntryCreated {
				continue
			}
			entryID, _ := evt.Data["entry_id"].(string)
			if entryID == "" {
				continue
			}
			entry, err := store.Get(entryID)
			if err != nil {
				l.logger.Warn("entry lookup for notification failed",
					"entry_id", entryID, "error", err)
				continue
			}
			l.NotifyEntry(ctx, entry)
		}
	}
}

// NotifyEntry pushes one diary entry to the device's diary topic.
// Failures are logged, not returned; a flaky broker must not fail the
// write path that already stored the entry.
func (l *Link) NotifyEntry(ctx context.Context, entry *diary.Entry) {
	if l.cm == nil || entry == nil {
		return
	}

	tags := make([]string, len(entry.EmotionTags))
	for i, tag := range entry.EmotionTags {
		tags[i] = string(tag)
	}
	payload, err := json.Marshal(entryNotification{
		EntryID:     entry.EntryID,
		UserID:      entry.UserID,
		Timestamp:   entry.Timestamp,
		EventName:   entry.EventName,
		Title:       entry.Title,
		Content:     entry.Content,
		EmotionTags: tags,
		Provider:    entry.Provider,
	})
	if err != nil {
		l.logger.Error("mqtt marshal entry notification",
			"entry_id", entry.EntryID, "error", err)
		return
	}

	if _, err := l.cm.Publish(ctx, &paho.Publish{
		Topic:   l.diaryTopic(),
		Payload: payload,
		QoS:     1,
	}); err != nil {
		l.logger.Warn("mqtt entry notification failed",
			"entry_id", entry.EntryID, "error", err)
	}
}
