package notifications_test

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"reqflow/internal/config"
	"reqflow/internal/notifications"
)

func requestPayload() notifications.Payload {
	return notifications.Payload{
		notifications.KeyNumber:    "SOL-20260315-0004",
		notifications.KeyRequester: "Ana",
		notifications.KeyMaterial:  "Lactose",
		notifications.KeyLot:       "L-77",
		notifications.KeyUrgency:   "high",
	}
}

func TestNewServiceReturnsNoopWhenNothingConfigured(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventSentToWarehouse, requestPayload()); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:           "sent to warehouse",
			event:          notifications.EventSentToWarehouse,
			payload:        requestPayload(),
			expectTitle:    "Reqflow - Sent to Warehouse SOL-20260315-0004",
			expectMessage:  "📦 Request sent to Warehouse: SOL-20260315-0004\nRequester: Ana\nMaterial: Lactose\nLot: L-77\nUrgency: high",
			expectTags:     "reqflow,warehouse,routed",
			expectPriority: "high",
		},
		{
			name:  "sent to shipping",
			event: notifications.EventSentToShipping,
			payload: notifications.Payload{
				notifications.KeyNumber:  "SOL-20260315-0001",
				notifications.KeyUrgency: "low",
				notifications.KeyActor:   "marta",
			},
			expectTitle:   "Reqflow - Completed SOL-20260315-0001",
			expectMessage: "🚚 Request completed and sent to Shipping: SOL-20260315-0001\nUrgency: low\nBy: marta",
			expectTags:    "reqflow,shipping,completed",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "Reqflow - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "reqflow,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresDisabledEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Warehouse = false
	cfg.Notifications.Shipping = false

	svc := notifications.NewService(&cfg)
	for _, event := range []notifications.Event{notifications.EventSentToWarehouse, notifications.EventSentToShipping, "unknown"} {
		if err := svc.Publish(context.Background(), event, requestPayload()); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

// fakeSMTP accepts a single plain-text SMTP session and records the message.
type fakeSMTP struct {
	ln   net.Listener
	mu   sync.Mutex
	from string
	rcpt []string
	data string
	done chan struct{}
}

func startFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeSMTP{ln: ln, done: make(chan struct{})}
	go f.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return f
}

func (f *fakeSMTP) port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

func (f *fakeSMTP) serve() {
	defer close(f.done)
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }
	reply("220 fake ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(cmd)
		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			reply("250 fake")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			f.mu.Lock()
			f.from = strings.Trim(cmd[len("MAIL FROM:"):], "<> ")
			f.mu.Unlock()
			reply("250 ok")
		case strings.HasPrefix(upper, "RCPT TO:"):
			f.mu.Lock()
			f.rcpt = append(f.rcpt, strings.Trim(cmd[len("RCPT TO:"):], "<> "))
			f.mu.Unlock()
			reply("250 ok")
		case upper == "DATA":
			reply("354 go ahead")
			var body strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				body.WriteString(l)
			}
			f.mu.Lock()
			f.data = body.String()
			f.mu.Unlock()
			reply("250 queued")
		case upper == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 ok")
		}
	}
}

func TestSMTPServiceSendsMail(t *testing.T) {
	fake := startFakeSMTP(t)

	cfg := config.Default()
	cfg.Notifications.SMTP = config.SMTP{
		Host: "127.0.0.1",
		Port: fake.port(),
		From: "reqflow@example.com",
		To:   []string{"almacen@example.com", "calidad@example.com"},
	}
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventSentToShipping, requestPayload()); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	<-fake.done

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.from != "reqflow@example.com" {
		t.Fatalf("unexpected sender %q", fake.from)
	}
	if len(fake.rcpt) != 2 {
		t.Fatalf("expected two recipients, got %v", fake.rcpt)
	}
	if !strings.Contains(fake.data, "Subject: Reqflow - Completed SOL-20260315-0004") {
		t.Fatalf("expected subject header, got %q", fake.data)
	}
	if !strings.Contains(fake.data, "Requester: Ana\r\n") {
		t.Fatalf("expected CRLF body lines, got %q", fake.data)
	}
}

func TestMultipleTransportsJoinErrors(t *testing.T) {
	ntfyCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ntfyCalls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// Nothing listens on this port once the listener is closed.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	deadPort := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.SMTP = config.SMTP{
		Host: "127.0.0.1",
		Port: deadPort,
		From: "reqflow@example.com",
		To:   []string{"almacen@example.com"},
	}
	err = notifications.NewService(&cfg).Publish(context.Background(), notifications.EventSentToWarehouse, requestPayload())
	if err == nil || !strings.Contains(err.Error(), "dial smtp 127.0.0.1:"+strconv.Itoa(deadPort)) {
		t.Fatalf("expected smtp dial error, got %v", err)
	}
	if ntfyCalls != 1 {
		t.Fatalf("expected ntfy to be called despite smtp failure, got %d", ntfyCalls)
	}
}
