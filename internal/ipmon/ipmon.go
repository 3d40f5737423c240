package ipmon

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"schedule-manager/internal/repository"
)

// Notifier announces an address change through the push gateway.
type Notifier interface {
	SendIPChange(ctx context.Context, oldIP, newIP string) (string, error)
}

var defaultServices = []string{
	"https://api.ipify.org",
	"https://ifconfig.me/ip",
	"https://icanhazip.com",
}

// Monitor tracks the machine's public IP and notifies on change. Several
// lookup services are tried in order so one outage does not blind the check.
type Monitor struct {
	ips      *repository.IPRepository
	notifier Notifier
	services []string
	httpc    *http.Client
	now      func() time.Time
}

func New(ips *repository.IPRepository, notifier Notifier) *Monitor {
	return &Monitor{
		ips:      ips,
		notifier: notifier,
		services: defaultServices,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// Check fetches the current public IP, compares it to the last stored one,
// and records plus announces any change. The first ever observation is stored
// silently.
func (m *Monitor) Check(ctx context.Context) error {
	current, err := m.fetch(ctx)
	if err != nil {
		return err
	}

	last, err := m.ips.Latest(ctx)
	if err != nil {
		return fmt.Errorf("load last ip: %w", err)
	}
	if current == last {
		return nil
	}

	if err := m.ips.Save(ctx, current, m.now()); err != nil {
		return fmt.Errorf("save ip %s: %w", current, err)
	}

	if last == "" {
		log.Printf("[info] public ip recorded: %s", current)
		return nil
	}

	log.Printf("[info] public ip changed: %s -> %s", last, current)
	if _, err := m.notifier.SendIPChange(ctx, last, current); err != nil {
		return fmt.Errorf("announce ip change: %w", err)
	}
	return nil
}

func (m *Monitor) fetch(ctx context.Context) (string, error) {
	var lastErr error
	for _, svc := range m.services {
		ip, err := m.fetchFrom(ctx, svc)
		if err != nil {
			lastErr = err
			continue
		}
		return ip, nil
	}
	return "", fmt.Errorf("all ip services failed, last error: %w", lastErr)
}

func (m *Monitor) fetchFrom(ctx context.Context, svc string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc, nil)
	if err != nil {
		return "", err
	}
	resp, err := m.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned %s", svc, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 128))
	if err != nil {
		return "", err
	}
	ip := strings.TrimSpace(string(body))
	if ip == "" || len(ip) > 64 || !strings.ContainsAny(ip, ".:") {
		return "", fmt.Errorf("%s returned implausible address %q", svc, ip)
	}
	return ip, nil
}
