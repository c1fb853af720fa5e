/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package narrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type narratorFunc func(ctx context.Context, e Event) (string, error)

func (f narratorFunc) Narrate(ctx context.Context, e Event) (string, error) {
	return f(ctx, e)
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{})
	if c.cfg.HTTPClient == nil {
		t.Fatal("expected non-nil HTTP client")
	}
	if c.cfg.URL != DefaultURL {
		t.Fatalf("url = %q", c.cfg.URL)
	}
}

func TestClientNarrate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("authorization = %q", got)
		}

		var req struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "small" || !strings.Contains(req.Input, "night-start") {
			t.Errorf("request = %+v", req)
		}

		_, _ = w.Write([]byte(`{"output_text":"  The moon hides its face.  "}`))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, APIKey: "key-1", Model: "small", HTTPClient: srv.Client()})
	got, err := c.Narrate(context.Background(), Event{Kind: NightStart, Game: "mafia", Round: 2})
	if err != nil {
		t.Fatal(err)
	}
	if got != "The moon hides its face." {
		t.Fatalf("text = %q", got)
	}
}

func TestClientNarrateResponses(t *testing.T) {
	tests := []struct {
		name    string
		res     *http.Response
		want    string
		wantErr bool
	}{
		{
			name: "nested output",
			res:  response(200, `{"output":[{"content":[{"type":"output_text","text":""},{"type":"output_text","text":"Dawn."}]}]}`),
			want: "Dawn.",
		},
		{
			name:    "empty output",
			res:     response(200, `{"output":[]}`),
			wantErr: true,
		},
		{
			name:    "bad status",
			res:     response(500, `upstream down`),
			wantErr: true,
		},
		{
			name:    "bad json",
			res:     response(200, `{`),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(Config{
				APIKey: "k",
				Model:  "m",
				HTTPClient: &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
					return tt.res, nil
				})},
			})

			got, err := c.Narrate(context.Background(), Event{Kind: DayStart})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("got %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestClientNarrateValidation(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		t.Fatalf("round trip should not execute: %v", req.URL)
		return nil, nil
	})}

	for _, cfg := range []Config{
		{Model: "m", HTTPClient: client},
		{APIKey: "k", HTTPClient: client},
	} {
		if _, err := NewClient(cfg).Narrate(context.Background(), Event{Kind: GameEnd}); err == nil {
			t.Fatalf("config %+v: expected error", cfg)
		}
	}
}

func TestSafeFallsBack(t *testing.T) {
	e := Event{Kind: VoteResult, Game: "mafia", Eliminated: "Dana"}

	tests := []struct {
		name string
		n    Narrator
		want string
	}{
		{name: "nil narrator", n: nil, want: Fallback(e)},
		{
			name: "error",
			n: narratorFunc(func(context.Context, Event) (string, error) {
				return "", errors.New("boom")
			}),
			want: Fallback(e),
		},
		{
			name: "blank",
			n: narratorFunc(func(context.Context, Event) (string, error) {
				return "   ", nil
			}),
			want: Fallback(e),
		},
		{
			name: "ok",
			n: narratorFunc(func(context.Context, Event) (string, error) {
				return "Dana is gone.", nil
			}),
			want: "Dana is gone.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Safe{Narrator: tt.n}).Narrate(context.Background(), e); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSafeTimeout(t *testing.T) {
	slow := narratorFunc(func(ctx context.Context, _ Event) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	start := time.Now()
	got := Safe{Narrator: slow, Timeout: 20 * time.Millisecond}.Narrate(context.Background(), Event{Kind: GameEnd, Winner: "citizens"})
	if got != "The game is over. The citizens win." {
		t.Fatalf("got %q", got)
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout not applied")
	}
}

func TestFallbackCoversEveryKind(t *testing.T) {
	for _, k := range []Kind{NightStart, DayStart, VoteResult, GameEnd} {
		if Fallback(Event{Kind: k}) == "" {
			t.Errorf("no fallback for %s", k)
		}
	}
	got, err := Static{}.Narrate(context.Background(), Event{Kind: NightStart, Round: 1})
	if err != nil || got != "Night 1 falls. Everyone closes their eyes." {
		t.Fatalf("static = %q, %v", got, err)
	}
}

func TestPrompt(t *testing.T) {
	p := Prompt(Event{Kind: VoteResult, Game: "mafia", Round: 3, Alive: []string{"Ann", "Bo"}, Eliminated: "Cy", EliminatedRole: "medic"})
	for _, want := range []string{"vote-result", "Round 3", "Ann, Bo", "Cy", "medic"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q: %s", want, p)
		}
	}
}
