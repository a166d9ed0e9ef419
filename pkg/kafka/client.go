// Package kafka publishes domain events and runs consumer loops on
// segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

const (
	dialAttempts = 20
	dialBackoff  = 3 * time.Second

	topicPartitions = 3
	readBackoff     = time.Second
)

// Client publishes to and consumes from one cluster. The writer is shared
// by every topic; messages with the same key land on the same partition,
// so events for one trip keep their order.
type Client struct {
	brokers []string
	writer  *kafkago.Writer
}

// NewClient creates a client for brokers. Nothing is dialled until the
// first call.
func NewClient(brokers []string) *Client {
	return &Client{
		brokers: brokers,
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireOne,
		},
	}
}

// EnsureTopics creates any missing topics through the cluster controller,
// waiting for a broker to come up first.
func (c *Client) EnsureTopics(ctx context.Context, topics ...string) error {
	conn, err := c.dialController(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	err = conn.CreateTopics(topicConfigs(topics)...)
	if err != nil && !errors.Is(err, kafkago.TopicAlreadyExists) {
		return fmt.Errorf("kafka: create topics: %w", err)
	}
	log.Printf("[kafka] topics ready: %s", strings.Join(topics, ", "))
	return nil
}

func topicConfigs(topics []string) []kafkago.TopicConfig {
	configs := make([]kafkago.TopicConfig, 0, len(topics))
	for _, t := range topics {
		configs = append(configs, kafkago.TopicConfig{
			Topic:             t,
			NumPartitions:     topicPartitions,
			ReplicationFactor: 1,
		})
	}
	return configs
}

func (c *Client) dialController(ctx context.Context) (*kafkago.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		broker := c.brokers[(attempt-1)%len(c.brokers)]
		conn, err := kafkago.DialContext(ctx, "tcp", broker)
		if err == nil {
			ctrl, cerr := conn.Controller()
			conn.Close()
			if cerr == nil {
				addr := net.JoinHostPort(ctrl.Host, strconv.Itoa(ctrl.Port))
				if conn, err = kafkago.DialContext(ctx, "tcp", addr); err == nil {
					return conn, nil
				}
			} else {
				err = cerr
			}
		}
		lastErr = err
		log.Printf("[kafka] %s not ready (%d/%d): %v", broker, attempt, dialAttempts, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dialBackoff):
		}
	}
	return nil, fmt.Errorf("kafka: no controller after %d attempts: %w", dialAttempts, lastErr)
}

// Publish JSON-encodes value and writes it to topic under key.
func (c *Client) Publish(ctx context.Context, topic, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kafka: encode %s: %w", topic, err)
	}
	return c.writer.WriteMessages(ctx, kafkago.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	})
}

// Subscribe reads topic as member of groupID until ctx ends. A fresh group
// starts from the newest offset. Each message is committed once handler
// returns; a handler error is logged and the message skipped.
func (c *Client) Subscribe(ctx context.Context, topic, groupID string, handler func([]byte) error) {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     c.brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafkago.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})

	go func() {
		defer r.Close()
		for {
			msg, err := r.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[kafka] fetch %s: %v", topic, err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(readBackoff):
				}
				continue
			}
			if err := handler(msg.Value); err != nil {
				log.Printf("[kafka] %s offset %d skipped: %v", topic, msg.Offset, err)
			}
			if err := r.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				log.Printf("[kafka] commit %s offset %d: %v", topic, msg.Offset, err)
			}
		}
	}()
}

// Close flushes pending writes.
func (c *Client) Close() error { return c.writer.Close() }
