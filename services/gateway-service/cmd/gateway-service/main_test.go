package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func upstream(t *testing.T, name string) *url.URL {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", name)
		_, _ = io.WriteString(w, r.Method+" "+r.URL.RequestURI())
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse upstream url: %v", err)
	}
	return u
}

func TestRegisterRoutes_ProxiesToUpstreams(t *testing.T) {
	mux := http.NewServeMux()
	registerRoutes(mux, upstreamConfig{
		Booking: upstream(t, "booking"),
		Contact: upstream(t, "contact"),
	}, http.DefaultTransport)
	gw := httptest.NewServer(mux)
	defer gw.Close()

	cases := []struct {
		path     string
		upstream string
	}{
		{"/api/v1/booking?date=2025-11-28&timezone=America/Phoenix", "booking"},
		{"/api/v1/contact", "contact"},
	}
	for _, tc := range cases {
		resp, err := http.Get(gw.URL + tc.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tc.path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if got := resp.Header.Get("X-Upstream"); got != tc.upstream {
			t.Fatalf("%s: expected upstream %q, got %q", tc.path, tc.upstream, got)
		}
		if string(body) != "GET "+tc.path {
			t.Fatalf("%s: upstream saw %q", tc.path, body)
		}
	}
}

func TestRegisterRoutes_UnknownPath(t *testing.T) {
	mux := http.NewServeMux()
	registerRoutes(mux, upstreamConfig{
		Booking: upstream(t, "booking"),
		Contact: upstream(t, "contact"),
	}, http.DefaultTransport)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/billing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGRPCHealthCheck_Unreachable(t *testing.T) {
	check := grpcHealthCheck("127.0.0.1:1", "booking")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := check(ctx); err == nil {
		t.Fatalf("expected an error for an unreachable upstream")
	}
}
