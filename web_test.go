/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Seednode/partyroom/room"
)

func TestStaticRoutes(t *testing.T) {
	ts := newTestServer(t)
	ts.createRoom(t, room.Liar, "host")

	tests := []struct {
		path        string
		contentType string
		contains    string
	}{
		{"/", "text/html; charset=utf-8", "1 active room(s)"},
		{"/healthz", "text/plain; charset=utf-8", "Ok"},
		{"/version", "text/plain; charset=utf-8", "partyroom v" + releaseVersion},
		{"/robots.txt", "text/plain; charset=utf-8", "Disallow: /liar/"},
	}

	for _, tt := range tests {
		resp, body := ts.do(t, http.MethodGet, tt.path, "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status %d", tt.path, resp.StatusCode)
		}
		if got := resp.Header.Get("Content-Type"); got != tt.contentType {
			t.Fatalf("%s: content type %q", tt.path, got)
		}
		if !strings.Contains(string(body), tt.contains) {
			t.Fatalf("%s: body %q lacks %q", tt.path, body, tt.contains)
		}
		if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("%s: security headers missing", tt.path)
		}
	}
}

func TestProfileRoutesAreOptIn(t *testing.T) {
	for _, enabled := range []bool{false, true} {
		cfg := &Config{profile: enabled, logger: zap.NewNop(), sessionTimeout: time.Hour}
		m := newRoomManager(t.Context(), cfg, nil, room.Coordinator{})
		mux := newRouter(cfg, m, make(chan error, 1))

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pprof/cmdline", nil))

		if got := rec.Code == http.StatusOK; got != enabled {
			t.Fatalf("profile=%v: status %d", enabled, rec.Code)
		}
	}
}

func TestPrefixedRoutes(t *testing.T) {
	cfg := &Config{prefix: "/games", logger: zap.NewNop()}
	m := newRoomManager(t.Context(), cfg, nil, room.Coordinator{})
	mux := newRouter(cfg, m, make(chan error, 1))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/games/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("prefixed healthz: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unprefixed healthz: %d", rec.Code)
	}
}

func TestSecurityHeadersHSTS(t *testing.T) {
	for _, tt := range []struct {
		cfg  Config
		hsts bool
	}{
		{Config{}, false},
		{Config{tlsCert: "c.pem", tlsKey: "k.pem"}, true},
	} {
		rec := httptest.NewRecorder()
		securityHeaders(&tt.cfg, rec)
		if got := rec.Header().Get("Strict-Transport-Security") != ""; got != tt.hsts {
			t.Fatalf("%+v: hsts = %v", tt.cfg, got)
		}
	}
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		remote string
		header map[string]string
		want   string
	}{
		{"10.0.0.1:1234", nil, "10.0.0.1:1234"},
		{"10.0.0.1:1234", map[string]string{"X-Real-IP": "192.0.2.7"}, "192.0.2.7:1234"},
		{"10.0.0.1:1234", map[string]string{"X-Real-IP": "bogus"}, "10.0.0.1:1234"},
		{"10.0.0.1:1234", map[string]string{"CF-Connecting-IP": "2001:db8::1", "X-Real-IP": "192.0.2.7"}, "[2001:db8::1]:1234"},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remote
		for k, v := range tt.header {
			r.Header.Set(k, v)
		}
		if got := realIP(r); got != tt.want {
			t.Fatalf("realIP(%s, %v) = %q, want %q", tt.remote, tt.header, got, tt.want)
		}
	}
}

func TestHumanReadableSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{999, "999 B"},
		{1000, "1.0 kB"},
		{1500, "1.5 kB"},
		{2_500_000, "2.5 MB"},
	}

	for _, tt := range tests {
		if got := humanReadableSize(tt.in); got != tt.want {
			t.Fatalf("humanReadableSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewPageEscapes(t *testing.T) {
	page := newPage("<Error>", "a & b")
	if strings.Contains(page, "<Error>") || !strings.Contains(page, "a &amp; b") {
		t.Fatalf("page not escaped: %s", page)
	}
}
