package extsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/allbeads/allbeads/internal/graph"
)

func TestGitHubIngressSearchesViaGraphQL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/graphql" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": {
				"search": {
					"edges": [
						{"node": {"number": 42, "title": "Fix thing", "state": "open", "labels": {"nodes": [{"name": "ai-agent"}, {"name": "p0"}]}}}
					]
				}
			}
		}`))
	}))
	defer srv.Close()

	gh, err := NewGitHub(GitHubConfig{BaseURL: srv.URL, Owner: "acme", Repo: "service", Token: "tok"}, Config{LabelFilter: "ai-agent"})
	if err != nil {
		t.Fatalf("new github: %v", err)
	}
	shadows, err := gh.Ingress(context.Background())
	if err != nil {
		t.Fatalf("ingress: %v", err)
	}
	if len(shadows) != 1 {
		t.Fatalf("expected 1 shadow, got %d", len(shadows))
	}
	s := shadows[0]
	if s.ExternalRef == nil || *s.ExternalRef != "github:acme/service#42" {
		t.Errorf("expected external_ref github:acme/service#42, got %v", s.ExternalRef)
	}
	if s.Status != graph.StatusOpen {
		t.Errorf("expected status open, got %v", s.Status)
	}
	if s.Priority != graph.P0 {
		t.Errorf("expected priority P0, got %v", s.Priority)
	}
}

// TestGitHubEgressOnClosure matches spec scenario 4 literally: a bead
// linked to github:acme/service#42 transitions to Closed, and egress
// PATCHes the issue to closed and posts a completion comment.
func TestGitHubEgressOnClosure(t *testing.T) {
	var patchedState string
	var commentBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPatch && strings.HasSuffix(r.URL.Path, "/repos/acme/service/issues/42"):
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			patchedState, _ = body["state"].(string)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"number": 42, "state": "closed"}`))
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/repos/acme/service/issues/42/comments"):
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			commentBody, _ = body["body"].(string)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id": 1}`))
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	gh, err := NewGitHub(GitHubConfig{BaseURL: srv.URL, Owner: "acme", Repo: "service", Token: "tok"}, Config{TwoWaySync: true, AgentName: "AllBeads agent"})
	if err != nil {
		t.Fatalf("new github: %v", err)
	}

	ref := "github:acme/service#42"
	g := graph.New()
	g.AddShadow(&graph.ShadowBead{Id: "gh-42", Status: graph.StatusClosed, ExternalRef: &ref})

	results, err := gh.Egress(context.Background(), g)
	if err != nil {
		t.Fatalf("egress: %v", err)
	}
	if len(results) != 1 || results[0].Status != "pushed" {
		t.Fatalf("expected 1 pushed result, got %+v", results)
	}
	if patchedState != "closed" {
		t.Errorf("expected PATCH state=closed, got %q", patchedState)
	}
	expectedComment := "Issue completed by AllBeads agent.\n\nResolution: Completed"
	if commentBody != expectedComment {
		t.Errorf("expected comment %q, got %q", expectedComment, commentBody)
	}
}
