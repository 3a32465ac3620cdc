package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// EmitterConfig configures the MQTT emitter.
type EmitterConfig struct {
	// Broker is the host:port of the MQTT broker.
	Broker string
	// ClientID identifies this sensor instance on the broker.
	ClientID string
	// Topic is where snapshots are published.
	Topic string
	// QoS is the MQTT quality-of-service level for snapshot messages.
	QoS byte
}

// DefaultEmitterConfig returns the broker defaults used by the sensor fleet.
func DefaultEmitterConfig() EmitterConfig {
	return EmitterConfig{
		Broker:   "localhost:1883",
		ClientID: "accelcache-telemetry",
		Topic:    "care/health/accelcache",
		QoS:      0,
	}
}

// EmitterStats contains emitter statistics.
type EmitterStats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

// Emitter publishes telemetry snapshots to the MQTT broker as JSON,
// alongside the sensor's other health topics.
type Emitter struct {
	cfg    EmitterConfig
	Client mqtt.Client // Exported for control plane

	mu        sync.RWMutex
	published uint64
	errors    uint64
	connected bool
}

// NewEmitter creates a new MQTT emitter.
func NewEmitter(cfg EmitterConfig) *Emitter {
	return &Emitter{cfg: cfg}
}

// Connect establishes the broker connection.
func (e *Emitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("telemetry: mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.cfg.ClientID)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("telemetry: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker)
	}

	e.Client = mqtt.NewClient(opts)

	slog.Info("telemetry: connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.Client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()

	return nil
}

// Publish sends one snapshot to the configured topic.
func (e *Emitter) Publish(snap Snapshot) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := snap.ToJSON()
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	token := e.Client.Publish(e.cfg.Topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	slog.Debug("telemetry: snapshot published",
		"topic", e.cfg.Topic,
		"trace_id", snap.TraceID,
		"size", len(payload))

	return nil
}

// Run subscribes to the bus and forwards every received snapshot to the
// broker until ctx is cancelled. Publish failures are logged, not fatal.
func (e *Emitter) Run(ctx context.Context, bus *Bus) error {
	ch := make(chan Snapshot, 4)
	if err := bus.Subscribe(e.cfg.ClientID, ch); err != nil {
		return err
	}
	defer bus.Unsubscribe(e.cfg.ClientID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-ch:
			if err := e.Publish(snap); err != nil {
				slog.Warn("telemetry: snapshot publish failed",
					"error", err,
					"trace_id", snap.TraceID)
			}
		}
	}
}

// Disconnect closes the MQTT connection.
func (e *Emitter) Disconnect() error {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250) // 250ms grace period
		slog.Info("telemetry: mqtt disconnected")
	}

	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()

	return nil
}

// Stats returns emitter statistics.
func (e *Emitter) Stats() EmitterStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return EmitterStats{
		Connected: e.connected,
		Published: e.published,
		Errors:    e.errors,
	}
}

func (e *Emitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *Emitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
