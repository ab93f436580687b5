// Command relaycli is a terminal client for the relay. It tails events on
// one or more topics or publishes a single event.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/badhabitcaps/poker-web/channel"
	"github.com/badhabitcaps/poker-web/domain"
	"github.com/badhabitcaps/poker-web/logging"
)

const defaultURL = "ws://localhost:3001/ws"

var allTopics = []string{
	domain.TopicCommentNew,
	domain.TopicCommentUpdate,
	domain.TopicCommentDelete,
	domain.TopicVoteUpdate,
	domain.TopicHandNew,
	domain.TopicHandUpdate,
	domain.TopicHandsUpdate,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out, errOut io.Writer) error {
	var (
		url            string
		reconnectDelay time.Duration
		timeout        time.Duration
		logLevel       string
	)

	flagSet := pflag.NewFlagSet("relaycli", pflag.ContinueOnError)
	flagSet.StringVar(&url, "url", envOr("RELAY_URL", defaultURL), "relay websocket URL")
	flagSet.DurationVar(&reconnectDelay, "reconnect-delay", channel.DefaultReconnectDelay, "wait between reconnect attempts")
	flagSet.DurationVar(&timeout, "timeout", 5*time.Second, "publish: how long to wait for the relay")
	flagSet.StringVar(&logLevel, "log-level", "warn", "debug|info|warn|error")
	flagSet.SetInterspersed(false)
	flagSet.Usage = func() { printHelp(errOut, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	logging.SetLevel(logLevel)
	slog.SetDefault(slog.New(logging.NewHandler(errOut)))

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(errOut, flagSet)
		return errors.New("missing command")
	}

	ch := channel.New(url, channel.WithReconnectDelay(reconnectDelay))

	switch rest[0] {
	case "tail":
		topics := rest[1:]
		if len(topics) == 0 {
			topics = allTopics
		}
		return tail(ctx, ch, topics, out)
	case "publish":
		if len(rest) != 3 {
			return errors.New("usage: relaycli publish <topic> <json-payload>")
		}
		return publish(ctx, ch, rest[1], json.RawMessage(rest[2]), timeout, out)
	default:
		return fmt.Errorf("unknown command %q", rest[0])
	}
}

// tail prints every event on topics as one JSON line until ctx is done.
func tail(ctx context.Context, ch *channel.Channel, topics []string, out io.Writer) error {
	var mu sync.Mutex
	enc := json.NewEncoder(out)

	for _, topic := range topics {
		topic := topic
		ch.Subscribe(topic, func(payload json.RawMessage) {
			mu.Lock()
			defer mu.Unlock()
			if err := enc.Encode(domain.Event{Topic: topic, Payload: payload}); err != nil {
				slog.Warn("tail write failed", "topic", topic, "error", err)
			}
		})
	}

	return ch.Run(ctx)
}

// publish sends one event and waits for the relay to echo it back, which
// confirms the relay accepted it.
func publish(ctx context.Context, ch *channel.Channel, topic string, payload json.RawMessage, timeout time.Duration, out io.Writer) error {
	if !json.Valid(payload) {
		return fmt.Errorf("payload is not valid JSON")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	echoed := make(chan struct{}, 1)
	ch.Subscribe(topic, func(json.RawMessage) {
		select {
		case echoed <- struct{}{}:
		default:
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		ch.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for ch.State() != channel.Connected {
		select {
		case <-ctx.Done():
			return fmt.Errorf("connect to relay: %w", ctx.Err())
		case <-ticker.C:
		}
	}

	if !ch.Publish(topic, payload) {
		return fmt.Errorf("publish %s: not sent", topic)
	}

	select {
	case <-echoed:
		fmt.Fprintf(out, "published %s\n", topic)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish %s: no echo from relay: %w", topic, ctx.Err())
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `relaycli: talk to the poker relay.

Usage:
  relaycli [flags] tail [topic...]
  relaycli [flags] publish <topic> <json-payload>

Flags:
%s`, flagSet.FlagUsages())
}
