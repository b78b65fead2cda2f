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

// TestJiraIngressProducesShadowBead matches spec scenario 3 literally:
// one JIRA issue maps to one external shadow bead with the expected
// status/priority/issue-type/external-ref.
func TestJiraIngressProducesShadowBead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/rest/api/3/search") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"issues": [
				{
					"key": "PROJ-123",
					"fields": {
						"summary": "X",
						"status": {"statusCategory": {"key": "new"}},
						"priority": {"name": "High"},
						"issuetype": {"name": "Bug"},
						"labels": ["ai-agent"]
					}
				}
			]
		}`))
	}))
	defer srv.Close()

	j := NewJira(JiraConfig{BaseURL: srv.URL, ProjectKey: "PROJ", Token: "tok"}, Config{LabelFilter: "ai-agent"})
	shadows, err := j.Ingress(context.Background())
	if err != nil {
		t.Fatalf("ingress: %v", err)
	}
	if len(shadows) != 1 {
		t.Fatalf("expected 1 shadow, got %d", len(shadows))
	}
	s := shadows[0]
	if s.Id != graph.BeadId("PROJ-123") {
		t.Errorf("expected id PROJ-123, got %s", s.Id)
	}
	if s.Status != graph.StatusOpen {
		t.Errorf("expected status open, got %v", s.Status)
	}
	if s.Priority != graph.P1 {
		t.Errorf("expected priority P1, got %v", s.Priority)
	}
	if s.IssueType != graph.IssueBug {
		t.Errorf("expected issue type bug, got %v", s.IssueType)
	}
	if s.ExternalRef == nil || *s.ExternalRef != "jira:PROJ-123" {
		t.Errorf("expected external_ref jira:PROJ-123, got %v", s.ExternalRef)
	}
}

func TestJiraEgressPostsTransitionAndComment(t *testing.T) {
	var transitionPosted, commentPosted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/transitions") && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"transitions":[{"id":"31","name":"Done"}]}`))
		case strings.HasSuffix(r.URL.Path, "/transitions") && r.Method == http.MethodPost:
			transitionPosted = true
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.WriteHeader(http.StatusNoContent)
		case strings.HasSuffix(r.URL.Path, "/comment"):
			commentPosted = true
			w.WriteHeader(http.StatusCreated)
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	j := NewJira(JiraConfig{BaseURL: srv.URL, ProjectKey: "PROJ", Token: "tok"}, Config{TwoWaySync: true, AgentName: "AllBeads agent"})

	ref := "jira:PROJ-123"
	g := graph.New()
	g.AddShadow(&graph.ShadowBead{Id: "PROJ-123", Status: graph.StatusClosed, ExternalRef: &ref})

	results, err := j.Egress(context.Background(), g)
	if err != nil {
		t.Fatalf("egress: %v", err)
	}
	if len(results) != 1 || results[0].Status != "pushed" {
		t.Fatalf("expected 1 pushed result, got %+v", results)
	}
	if !transitionPosted {
		t.Error("expected transition to be posted")
	}
	if !commentPosted {
		t.Error("expected completion comment to be posted")
	}
}

func TestJiraEgressNoOpWhenTwoWaySyncDisabled(t *testing.T) {
	j := NewJira(JiraConfig{BaseURL: "http://unused.invalid"}, Config{TwoWaySync: false})
	results, err := j.Egress(context.Background(), graph.New())
	if err != nil {
		t.Fatalf("egress: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results when two-way sync disabled, got %+v", results)
	}
}
