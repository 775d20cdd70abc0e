// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPSenderSend(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse int
		serverDelay    time.Duration
		timeout        time.Duration
		wantErr        bool
		errContains    string
	}{
		{
			name:           "200 accepted",
			serverResponse: http.StatusOK,
			timeout:        5 * time.Second,
		},
		{
			name:           "201 accepted",
			serverResponse: http.StatusCreated,
			timeout:        5 * time.Second,
		},
		{
			name:           "400 rejected",
			serverResponse: http.StatusBadRequest,
			timeout:        5 * time.Second,
			wantErr:        true,
			errContains:    "non-2xx status: 400",
		},
		{
			name:           "500 rejected",
			serverResponse: http.StatusInternalServerError,
			timeout:        5 * time.Second,
			wantErr:        true,
			errContains:    "non-2xx status: 500",
		},
		{
			name:           "timeout exceeded",
			serverResponse: http.StatusOK,
			serverDelay:    time.Second,
			timeout:        50 * time.Millisecond,
			wantErr:        true,
			errContains:    "context deadline exceeded",
		},
	}

	payload := []byte(`{"event_type":"message.dropped","data":{"topic":"a/b"}}`)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("expected POST method, got %s", r.Method)
				}
				if ct := r.Header.Get("Content-Type"); ct != "application/json" {
					t.Errorf("expected Content-Type application/json, got %s", ct)
				}
				if ua := r.Header.Get("User-Agent"); ua != "Absmach-FluxGate/1.0" {
					t.Errorf("unexpected User-Agent %s", ua)
				}
				if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
					t.Errorf("expected Authorization header, got %s", auth)
				}

				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("failed to read body: %v", err)
				}
				if string(body) != string(payload) {
					t.Errorf("expected body %s, got %s", payload, body)
				}

				if tt.serverDelay > 0 {
					time.Sleep(tt.serverDelay)
				}
				w.WriteHeader(tt.serverResponse)
			}))
			defer server.Close()

			sender := NewHTTPSender()
			ctx, cancel := context.WithTimeout(context.Background(), tt.timeout)
			defer cancel()

			headers := map[string]string{"Authorization": "Bearer test-token"}
			err := sender.Send(ctx, server.URL, headers, payload, tt.timeout)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				} else if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("expected error containing %q, got %q", tt.errContains, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestHTTPSenderInvalidURL(t *testing.T) {
	sender := NewHTTPSender()

	err := sender.Send(context.Background(), "invalid://url", nil, []byte("test"), 5*time.Second)
	if err == nil {
		t.Error("expected error for invalid URL, got nil")
	}
}
