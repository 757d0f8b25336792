// Package config loads matchd's environment-driven configuration via
// github.com/spf13/viper (the pack's configuration library, carried over
// from the teacher's domain-adjacent peers rather than the teacher itself,
// which has no config surface of its own).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of environment-driven settings spec.md §6
// requires, plus the admin listen address this expansion adds.
type Config struct {
	// Kafka bootstrap brokers, comma-separated host:port pairs.
	KafkaBrokers []string

	// ConsumerGroup is the inbound consumer group id; commits are manual,
	// made only after a command's events have been durably emitted.
	ConsumerGroup string

	// InboundTopic carries Command records keyed by symbol.
	InboundTopic string

	// OutboundTopic carries Event records keyed by symbol.
	OutboundTopic string

	// DedupCapacity bounds the per-symbol command-id window (spec.md §4.5).
	DedupCapacity int

	// AdminListenAddr is the read-only TCP introspection surface's bind
	// address, e.g. ":7777". Empty disables the admin surface.
	AdminListenAddr string

	// PollTimeout bounds each inbound poll so the loop can still drive
	// outbound flush and ctx cancellation between messages.
	PollTimeout time.Duration
}

const envPrefix = "MATCHD"

// Load reads configuration from the environment, applying the same
// defaults spec.md §6 names (dedup capacity 100000) plus this expansion's
// admin address default.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// A variable set to "" counts as set, so an empty
	// MATCHD_ADMIN_LISTEN_ADDR disables the admin surface.
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.consumer_group", "matchd")
	v.SetDefault("kafka.inbound_topic", "matchd.commands")
	v.SetDefault("kafka.outbound_topic", "matchd.events")
	v.SetDefault("dedup.capacity", 100000)
	v.SetDefault("admin.listen_addr", ":7777")
	v.SetDefault("poll.timeout_ms", 500)

	for _, key := range []string{
		"kafka.brokers", "kafka.consumer_group", "kafka.inbound_topic", "kafka.outbound_topic",
		"dedup.capacity", "admin.listen_addr", "poll.timeout_ms",
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	brokers := splitNonEmpty(v.GetString("kafka.brokers"))
	if len(brokers) == 0 {
		return Config{}, fmt.Errorf("config: %s_KAFKA_BROKERS must name at least one broker", envPrefix)
	}

	capacity := v.GetInt("dedup.capacity")
	if capacity <= 0 {
		return Config{}, fmt.Errorf("config: %s_DEDUP_CAPACITY must be positive, got %d", envPrefix, capacity)
	}

	return Config{
		KafkaBrokers:    brokers,
		ConsumerGroup:   v.GetString("kafka.consumer_group"),
		InboundTopic:    v.GetString("kafka.inbound_topic"),
		OutboundTopic:   v.GetString("kafka.outbound_topic"),
		DedupCapacity:   capacity,
		AdminListenAddr: v.GetString("admin.listen_addr"),
		PollTimeout:     time.Duration(v.GetInt("poll.timeout_ms")) * time.Millisecond,
	}, nil
}

func splitNonEmpty(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
