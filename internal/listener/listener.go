package listener

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Meta carries gateway metadata for an inbound command.
type Meta struct {
	ID       string
	Time     int64
	Title    string
	Priority int
}

// Handler is invoked for every decoded inbound command message.
type Handler func(message string, meta Meta)

const (
	initialReconnectDelay = time.Second
	maxReconnectDelay     = 60 * time.Second
)

// Listener subscribes to an ntfy topic's JSON stream and feeds decoded
// messages to the handler. It reconnects with exponential backoff on
// disconnect and never crashes the daemon.
type Listener struct {
	server  string
	topic   string
	handler Handler
	httpc   *http.Client
}

func New(server, topic string, handler Handler) *Listener {
	return &Listener{
		server:  strings.TrimRight(server, "/"),
		topic:   topic,
		handler: handler,
		// No overall timeout: the stream stays open indefinitely.
		httpc: &http.Client{},
	}
}

// Run blocks until ctx is cancelled, maintaining the subscription.
func (l *Listener) Run(ctx context.Context) {
	delay := initialReconnectDelay
	for {
		err := l.stream(ctx)
		if ctx.Err() != nil {
			log.Println("[info] command listener stopped")
			return
		}
		if err != nil {
			log.Printf("command listener: %v, reconnecting in %s", err, delay)
		} else {
			log.Printf("[info] command stream closed, reconnecting in %s", delay)
		}
		select {
		case <-ctx.Done():
			log.Println("[info] command listener stopped")
			return
		case <-time.After(delay):
		}
		if err == nil {
			delay = initialReconnectDelay
		} else if delay *= 2; delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

type streamEvent struct {
	Event    string `json:"event"`
	ID       string `json:"id"`
	Time     int64  `json:"time"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority int    `json:"priority"`
}

func (l *Listener) stream(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/%s/json", l.server, l.topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build subscribe request: %w", err)
	}

	resp, err := l.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", l.topic, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("subscribe to %s: gateway returned %s", l.topic, resp.Status)
	}

	log.Printf("[info] listening for commands on topic %s", l.topic)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			log.Printf("command listener: bad stream line: %v", err)
			continue
		}
		// The gateway interleaves keepalive and open events with messages.
		if ev.Event != "message" {
			continue
		}
		message := CleanMessage(ev.Message)
		if message == "" {
			continue
		}
		meta := Meta{ID: ev.ID, Time: ev.Time, Title: ev.Title, Priority: ev.Priority}
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("command handler panic: %v", r)
				}
			}()
			l.handler(message, meta)
		}()
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

// CleanMessage strips the transport wrappings iOS Shortcuts and similar
// senders add around a command: a '=' form prefix, URL encoding, and a
// single-value JSON object wrapper.
func CleanMessage(message string) string {
	message = strings.TrimSpace(message)

	if strings.HasPrefix(message, "=") {
		message = message[1:]
	}

	if strings.ContainsAny(message, "%+") {
		if decoded, err := url.QueryUnescape(strings.ReplaceAll(message, "+", " ")); err == nil {
			message = decoded
		}
	}

	if strings.HasPrefix(message, "{") && strings.HasSuffix(message, "}") {
		var wrapped map[string]string
		if err := json.Unmarshal([]byte(message), &wrapped); err == nil && len(wrapped) == 1 {
			for _, v := range wrapped {
				message = v
			}
		}
	}

	return strings.TrimSpace(message)
}
