package extsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v57/github"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/allbeads/allbeads/internal/errs"
	"github.com/allbeads/allbeads/internal/graph"
	"github.com/allbeads/allbeads/internal/util"
)

// GitHubConfig configures the GitHub half of ExternalSyncer.
type GitHubConfig struct {
	BaseURL string // empty or "github.com" for github.com, else a GHE host URL
	Owner   string
	Repo    string
	Token   string
}

// GitHub is the GitHub adapter. Issue update and comment go through
// google/go-github's typed REST client; search uses the GraphQL API
// directly since go-github has no issue-search helper, grounded on
// original_source/src/integrations/github.rs's generic graphql[T] call.
type GitHub struct {
	cfg     GitHubConfig
	extCfg  Config
	client  *gogithub.Client
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewGitHub constructs a GitHub adapter. If cfg.BaseURL is set and isn't
// github.com (a GitHub Enterprise host, or a test server), the client's
// REST base URL is set directly to <BaseURL>/api/v3/ — the same override
// point go-github's own tests use — while GraphQL goes to
// <BaseURL>/api/graphql (see graphqlEndpoint).
func NewGitHub(cfg GitHubConfig, extCfg Config) (*GitHub, error) {
	httpc := &http.Client{Transport: &bearerTransport{token: cfg.Token}}
	client := gogithub.NewClient(httpc)
	if cfg.BaseURL != "" && !strings.Contains(cfg.BaseURL, "github.com") {
		base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/api/v3/")
		if err != nil {
			return nil, errs.Wrap(errs.Configuration, err)
		}
		client.BaseURL = base
	}
	return &GitHub{
		cfg:     cfg,
		extCfg:  extCfg,
		client:  client,
		httpc:   httpc,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "github"}),
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}, nil
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

func (gh *GitHub) System() string { return "github" }

// Ingress searches for open issues labelled with the configured
// managed-label via GraphQL, and produces shadow beads for them (spec
// §4.7 ingress, §8 scenario 4).
func (gh *GitHub) Ingress(ctx context.Context) ([]*graph.ShadowBead, error) {
	if err := gh.limiter.Wait(ctx); err != nil {
		return nil, errs.Wrap(errs.Network, err)
	}
	label := SanitiseLabel(gh.extCfg.LabelFilter)
	query := fmt.Sprintf(`repo:%s/%s is:issue is:open label:"%s"`, gh.cfg.Owner, gh.cfg.Repo, label)

	var resp searchResponse
	if err := gh.graphql(ctx, SearchTimeout, searchIssuesQuery, map[string]any{"q": query}, &resp); err != nil {
		return nil, err
	}

	now := time.Now()
	var shadows []*graph.ShadowBead
	for _, edge := range resp.Data.Search.Edges {
		n := edge.Node
		var labels []string
		for _, l := range n.Labels.Nodes {
			labels = append(labels, l.Name)
		}
		ref := ExternalRefGitHub(gh.cfg.Owner, gh.cfg.Repo, n.Number)
		shadows = append(shadows, &graph.ShadowBead{
			Id:          graph.BeadId(fmt.Sprintf("gh-%d", n.Number)),
			Summary:     n.Title,
			Status:      GitHubStateToCore(n.State),
			Priority:    GitHubLabelsToPriority(labels),
			IssueType:   GitHubLabelsToIssueType(labels),
			Labels:      labels,
			LastSynced:  now,
			ExternalRef: &ref,
		})
	}
	return shadows, nil
}

// Egress pushes local Closed/InProgress transitions to GitHub issue
// state, and appends a completion comment on closure.
func (gh *GitHub) Egress(ctx context.Context, g *graph.FederatedGraph) ([]EgressResult, error) {
	if !gh.extCfg.TwoWaySync {
		return nil, nil
	}
	var results []EgressResult
	for _, s := range g.AllShadows() {
		if s.ExternalRef == nil || !strings.HasPrefix(*s.ExternalRef, "github:") {
			continue
		}
		target, ok := TargetFor(s.Status)
		if !ok {
			continue
		}
		number, err := issueNumberFromRef(*s.ExternalRef)
		if err != nil {
			results = append(results, EgressResult{ExternalRef: *s.ExternalRef, Status: "skipped", Err: err})
			continue
		}

		if err := gh.limiter.Wait(ctx); err != nil {
			results = append(results, EgressResult{ExternalRef: *s.ExternalRef, Status: "skipped", Err: err})
			continue
		}
		reqCtx, cancel := context.WithTimeout(ctx, MutationTimeout)
		state := target.GitHubState
		_, resp, updateErr := gh.breakerEditIssue(reqCtx, number, &gogithub.IssueRequest{State: &state})
		cancel()
		if updateErr != nil {
			results = append(results, EgressResult{ExternalRef: *s.ExternalRef, Status: "skipped", Err: classifyGitHubErr(resp, updateErr)})
			continue
		}

		if s.Status == graph.StatusClosed {
			gh.postCompletionComment(ctx, number, s.Notes)
		}
		results = append(results, EgressResult{ExternalRef: *s.ExternalRef, Status: "pushed"})
	}
	return results, nil
}

func (gh *GitHub) breakerEditIssue(ctx context.Context, number int, req *gogithub.IssueRequest) (*gogithub.Issue, *gogithub.Response, error) {
	result, err := gh.breaker.Execute(func() (interface{}, error) {
		issue, resp, err := gh.client.Issues.Edit(ctx, gh.cfg.Owner, gh.cfg.Repo, number, req)
		return struct {
			issue *gogithub.Issue
			resp  *gogithub.Response
		}{issue, resp}, err
	})
	if err != nil {
		return nil, nil, err
	}
	pair := result.(struct {
		issue *gogithub.Issue
		resp  *gogithub.Response
	})
	return pair.issue, pair.resp, nil
}

func (gh *GitHub) postCompletionComment(ctx context.Context, number int, notes string) {
	resolution := notes
	if resolution == "" {
		resolution = "Completed"
	}
	comment := fmt.Sprintf("Issue completed by %s.\n\nResolution: %s", gh.extCfg.AgentName, resolution)
	reqCtx, cancel := context.WithTimeout(ctx, MutationTimeout)
	defer cancel()
	_, _, _ = gh.client.Issues.CreateComment(reqCtx, gh.cfg.Owner, gh.cfg.Repo, number, &gogithub.IssueComment{Body: &comment})
}

func classifyGitHubErr(resp *gogithub.Response, err error) error {
	if resp != nil {
		retryAfter := ""
		if resp.Rate.Remaining == 0 {
			retryAfter = resp.Header.Get("Retry-After")
		}
		return errs.ClassifyHTTP(resp.StatusCode, retryAfter, err.Error())
	}
	return errs.Wrap(errs.Network, err)
}

func issueNumberFromRef(ref string) (int, error) {
	idx := strings.LastIndex(ref, "#")
	if idx < 0 {
		return 0, errs.New(errs.Parse, "malformed github external ref: "+ref)
	}
	var n int
	if _, err := fmt.Sscanf(ref[idx+1:], "%d", &n); err != nil {
		return 0, errs.Wrap(errs.Parse, err)
	}
	return n, nil
}

// --- raw GraphQL plumbing, grounded on original_source/src/integrations/github.rs ---

const searchIssuesQuery = `
query($q: String!) {
  search(query: $q, type: ISSUE, first: 50) {
    edges {
      node {
        ... on Issue {
          number
          title
          state
          labels(first: 20) { nodes { name } }
        }
      }
    }
  }
}`

type searchResponse struct {
	Data struct {
		Search struct {
			Edges []struct {
				Node struct {
					Number int    `json:"number"`
					Title  string `json:"title"`
					State  string `json:"state"`
					Labels struct {
						Nodes []struct {
							Name string `json:"name"`
						} `json:"nodes"`
					} `json:"labels"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"search"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (gh *GitHub) graphqlEndpoint() string {
	if gh.cfg.BaseURL == "" || strings.Contains(gh.cfg.BaseURL, "github.com") {
		return "https://api.github.com/graphql"
	}
	return strings.TrimRight(gh.cfg.BaseURL, "/") + "/api/graphql"
}

// graphql executes a GraphQL query against GitHub and decodes the
// response into out, mirroring the generic graphql[T] helper the
// original client used for its one search call. Transient failures are
// retried with backoff per errs.Decide()'s classification, same as the
// JIRA adapter's do().
func (gh *GitHub) graphql(ctx context.Context, timeout time.Duration, query string, variables map[string]any, out *searchResponse) error {
	payload, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return errs.Wrap(errs.Parse, err)
	}

	data, retryErr := util.Retry(ctx, retryConfig(), func() ([]byte, error) {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		result, breakerErr := gh.breaker.Execute(func() (interface{}, error) {
			req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, gh.graphqlEndpoint(), bytes.NewReader(payload))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := gh.httpc.Do(req)
			if err != nil {
				return nil, errs.Wrap(errs.Network, err)
			}
			defer resp.Body.Close()
			var body bytes.Buffer
			if _, err := body.ReadFrom(resp.Body); err != nil {
				return nil, err
			}
			if resp.StatusCode >= 300 {
				return nil, errs.ClassifyHTTP(resp.StatusCode, resp.Header.Get("Retry-After"), body.String())
			}
			return body.Bytes(), nil
		})
		if breakerErr != nil {
			return nil, breakerErr
		}
		return result.([]byte), nil
	})
	if retryErr != nil {
		if e, ok := retryErr.(*errs.Error); ok {
			return e
		}
		return errs.Wrap(errs.Network, retryErr)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return errs.Wrap(errs.Parse, err)
	}
	if len(out.Errors) > 0 {
		return errs.New(errs.Integration, out.Errors[0].Message)
	}
	return nil
}
