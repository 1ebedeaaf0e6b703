package external

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"teamsjira/internal/types"
)

func TestTokenClientCredentialsRequest(t *testing.T) {
	var gotGrant, gotClientID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("bad form: %v", err)
		}
		gotGrant = r.PostForm.Get("grant_type")
		gotClientID = r.PostForm.Get("client_id")
		fmt.Fprint(w, `{"access_token":"tok-1","expires_in":3600}`)
	}))
	defer srv.Close()

	p := NewClientCredentialsTokenProvider(srv.Client(), srv.URL, "app-1", "secret")
	token, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if token != "tok-1" {
		t.Errorf("got token %q", token)
	}
	if gotGrant != "client_credentials" || gotClientID != "app-1" {
		t.Errorf("unexpected grant request: grant=%q client=%q", gotGrant, gotClientID)
	}
}

func TestTokenIsCachedUntilNearExpiry(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":3600}`, requests)
	}))
	defer srv.Close()

	p := NewClientCredentialsTokenProvider(srv.Client(), srv.URL, "app-1", "secret")
	for i := 0; i < 3; i++ {
		if _, err := p.Token(context.Background()); err != nil {
			t.Fatalf("Token returned error: %v", err)
		}
	}
	if requests != 1 {
		t.Errorf("expected a single token request, got %d", requests)
	}
}

func TestTokenShortLivedTokenRefreshes(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		// Expires inside the refresh margin, so every call re-fetches.
		fmt.Fprint(w, `{"access_token":"tok","expires_in":30}`)
	}))
	defer srv.Close()

	p := NewClientCredentialsTokenProvider(srv.Client(), srv.URL, "app-1", "secret")
	for i := 0; i < 2; i++ {
		if _, err := p.Token(context.Background()); err != nil {
			t.Fatalf("Token returned error: %v", err)
		}
	}
	if requests != 2 {
		t.Errorf("expected refresh on every call, got %d requests", requests)
	}
}

func TestTokenEndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewClientCredentialsTokenProvider(srv.Client(), srv.URL, "app-1", "bad-secret")
	_, err := p.Token(context.Background())
	if !types.IsCode(err, types.ErrCodeUpstreamTeams) {
		t.Errorf("expected upstream error, got %v", err)
	}
}
