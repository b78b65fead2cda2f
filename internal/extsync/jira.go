package extsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/allbeads/allbeads/internal/errs"
	"github.com/allbeads/allbeads/internal/graph"
	"github.com/allbeads/allbeads/internal/util"
)

// JiraConfig configures the JIRA half of ExternalSyncer.
type JiraConfig struct {
	BaseURL    string // e.g. https://acme.atlassian.net
	ProjectKey string
	Token      string // resolved token value, not the env var name
}

// Jira is the JIRA adapter. JIRA's REST v3 responses nest fields deeply
// and inconsistently across endpoints, so fields of interest are pulled
// with gjson rather than declared as exhaustive structs — the same
// lenient-extraction approach the original Rust client uses.
type Jira struct {
	cfg      JiraConfig
	extCfg   Config
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
}

// NewJira constructs a JIRA adapter.
func NewJira(cfg JiraConfig, extCfg Config) *Jira {
	return &Jira{
		cfg:     cfg,
		extCfg:  extCfg,
		client:  &http.Client{},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "jira"}),
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
}

func (j *Jira) System() string { return "jira" }

// do issues one request, retrying transient failures with backoff per
// errs.Decide()'s classification, on top of the circuit breaker's
// failure isolation — generalizing internal/util/retry.go's
// IsRetryable hook onto the closed error taxonomy instead of message
// substring matching.
func (j *Jira) do(ctx context.Context, timeout time.Duration, method, path string, body []byte) ([]byte, *errs.Error) {
	if err := j.limiter.Wait(ctx); err != nil {
		return nil, errs.Wrap(errs.Network, err)
	}

	data, err := util.Retry(ctx, retryConfig(), func() ([]byte, error) {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		result, breakerErr := j.breaker.Execute(func() (interface{}, error) {
			var bodyReader io.Reader
			if body != nil {
				bodyReader = bytes.NewReader(body)
			}
			req, err := http.NewRequestWithContext(reqCtx, method, strings.TrimRight(j.cfg.BaseURL, "/")+path, bodyReader)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+j.cfg.Token)
			req.Header.Set("Accept", "application/json")
			req.Header.Set("Content-Type", "application/json")
			resp, err := j.client.Do(req)
			if err != nil {
				return nil, errs.Wrap(errs.Network, err)
			}
			defer resp.Body.Close()
			respBody, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= 300 {
				return nil, classifiedHTTPError(resp.StatusCode, resp.Header.Get("Retry-After"), string(respBody))
			}
			return respBody, nil
		})
		if breakerErr != nil {
			return nil, breakerErr
		}
		return result.([]byte), nil
	})
	if err != nil {
		if e, ok := err.(*errs.Error); ok {
			return nil, e
		}
		return nil, errs.Wrap(errs.Network, err)
	}
	return data, nil
}

// retryConfig retries only errors errs.Decide classifies as Retry or
// RetryAfterAction (network blips, 5xx, rate limits); everything else
// — including an open breaker's gobreaker.ErrOpenState — surfaces
// immediately.
func retryConfig() util.RetryConfig {
	return util.RetryConfig{
		MaxAttempts: 3,
		IsRetryable: func(err error) bool {
			e, ok := err.(*errs.Error)
			if !ok {
				return false
			}
			return e.Decide().Action != errs.NoRetry
		},
	}
}

func classifiedHTTPError(status int, retryAfter, body string) error {
	return errs.ClassifyHTTP(status, retryAfter, body)
}

// Ingress queries JIRA for issues matching the configured project and
// managed-label, open state, and produces shadow beads for them (spec
// §4.7 ingress steps 1,2,4; §8 scenario 3).
func (j *Jira) Ingress(ctx context.Context) ([]*graph.ShadowBead, error) {
	label := SanitiseLabel(j.extCfg.LabelFilter)
	jql := fmt.Sprintf(`project = %s AND labels = "%s" AND status != Done`, j.cfg.ProjectKey, label)
	path := "/rest/api/3/search?jql=" + urlQueryEscape(jql) + "&fields=summary,description,status,priority,issuetype,labels"

	data, err := j.do(ctx, SearchTimeout, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var shadows []*graph.ShadowBead
	issues := gjson.GetBytes(data, "issues")
	for _, issue := range issues.Array() {
		key := issue.Get("key").String()
		summary := issue.Get("fields.summary").String()
		statusKey := issue.Get("fields.status.statusCategory.key").String()
		priorityName := issue.Get("fields.priority.name").String()
		typeName := issue.Get("fields.issuetype.name").String()
		var labels []string
		for _, l := range issue.Get("fields.labels").Array() {
			labels = append(labels, l.String())
		}

		ref := ExternalRefJira(key)
		shadows = append(shadows, &graph.ShadowBead{
			Id:          graph.BeadId(key),
			Summary:     summary,
			Status:      JiraStatusCategoryToCore(statusKey),
			Priority:    JiraPriorityToCore(priorityName),
			IssueType:   JiraIssueTypeToCore(typeName),
			Labels:      labels,
			LastSynced:  now,
			ExternalRef: &ref,
		})
	}
	return shadows, nil
}

// transitions lists the available workflow transitions for an issue.
func (j *Jira) transitions(ctx context.Context, key string) ([]struct{ ID, Name string }, error) {
	data, err := j.do(ctx, FetchTimeout, http.MethodGet, "/rest/api/3/issue/"+key+"/transitions", nil)
	if err != nil {
		return nil, err
	}
	var out []struct{ ID, Name string }
	for _, t := range gjson.GetBytes(data, "transitions").Array() {
		out = append(out, struct{ ID, Name string }{ID: t.Get("id").String(), Name: t.Get("name").String()})
	}
	return out, nil
}

// Egress pushes local Closed/InProgress transitions to JIRA and appends
// a completion comment on closure (spec §4.7 egress, step 4).
func (j *Jira) Egress(ctx context.Context, g *graph.FederatedGraph) ([]EgressResult, error) {
	if !j.extCfg.TwoWaySync {
		return nil, nil
	}
	var results []EgressResult
	for _, s := range g.AllShadows() {
		if s.ExternalRef == nil || !strings.HasPrefix(*s.ExternalRef, "jira:") {
			continue
		}
		key := strings.TrimPrefix(*s.ExternalRef, "jira:")
		target, ok := TargetFor(s.Status)
		if !ok {
			continue
		}

		transitions, err := j.transitions(ctx, key)
		if err != nil {
			results = append(results, EgressResult{ExternalRef: *s.ExternalRef, Status: "skipped", Err: err})
			continue
		}
		var transitionID string
		for _, t := range transitions {
			if strings.EqualFold(t.Name, target.JiraStatusName) {
				transitionID = t.ID
				break
			}
		}
		if transitionID == "" {
			results = append(results, EgressResult{ExternalRef: *s.ExternalRef, Status: "skipped", Reason: "no matching transition to " + target.JiraStatusName})
			continue
		}

		body, _ := json.Marshal(map[string]any{"transition": map[string]string{"id": transitionID}})
		if _, err := j.do(ctx, MutationTimeout, http.MethodPost, "/rest/api/3/issue/"+key+"/transitions", body); err != nil {
			results = append(results, EgressResult{ExternalRef: *s.ExternalRef, Status: "skipped", Err: err})
			continue
		}

		if s.Status == graph.StatusClosed {
			j.postCompletionComment(ctx, key, s.Notes)
		}
		results = append(results, EgressResult{ExternalRef: *s.ExternalRef, Status: "pushed"})
	}
	return results, nil
}

func (j *Jira) postCompletionComment(ctx context.Context, key, notes string) {
	resolution := notes
	if resolution == "" {
		resolution = "Completed"
	}
	comment := fmt.Sprintf("Issue completed by %s.\n\nResolution: %s", j.extCfg.AgentName, resolution)
	body, _ := json.Marshal(map[string]any{
		"body": map[string]any{
			"type":    "doc",
			"version": 1,
			"content": []map[string]any{{
				"type":    "paragraph",
				"content": []map[string]any{{"type": "text", "text": comment}},
			}},
		},
	})
	// Comment failure is logged at warning but must never fail the
	// sync, so the error is not returned.
	if _, err := j.do(ctx, MutationTimeout, http.MethodPost, "/rest/api/3/issue/"+key+"/comment", body); err != nil {
		log.Printf("warning: posting completion comment on %s: %v", key, err)
	}
}

// --- Supplemented JIRA version/milestone CRUD (original_source/src/integrations/jira.rs) ---

// Version is a JIRA project version/milestone.
type Version struct {
	Id      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Released bool  `json:"released"`
}

// ListVersions lists a project's versions.
func (j *Jira) ListVersions(ctx context.Context, projectKey string) ([]Version, error) {
	data, err := j.do(ctx, SearchTimeout, http.MethodGet, "/rest/api/3/project/"+projectKey+"/versions", nil)
	if err != nil {
		return nil, err
	}
	var versions []Version
	if jsonErr := json.Unmarshal(data, &versions); jsonErr != nil {
		return nil, errs.Wrap(errs.Parse, jsonErr)
	}
	return versions, nil
}

// CreateVersion creates a new project version.
func (j *Jira) CreateVersion(ctx context.Context, projectKey, name string) (*Version, error) {
	body, _ := json.Marshal(map[string]any{"name": name, "project": projectKey})
	data, err := j.do(ctx, MutationTimeout, http.MethodPost, "/rest/api/3/version", body)
	if err != nil {
		return nil, err
	}
	var v Version
	if jsonErr := json.Unmarshal(data, &v); jsonErr != nil {
		return nil, errs.Wrap(errs.Parse, jsonErr)
	}
	return &v, nil
}

// UpdateVersion updates a version's fields.
func (j *Jira) UpdateVersion(ctx context.Context, versionID string, released bool) error {
	body, _ := json.Marshal(map[string]any{"released": released})
	_, err := j.do(ctx, MutationTimeout, http.MethodPut, "/rest/api/3/version/"+versionID, body)
	return err
}

// DeleteVersion deletes a version.
func (j *Jira) DeleteVersion(ctx context.Context, versionID string) error {
	_, err := j.do(ctx, MutationTimeout, http.MethodDelete, "/rest/api/3/version/"+versionID, nil)
	return err
}

// AssignIssueToVersion adds a version as a fix version on an issue.
func (j *Jira) AssignIssueToVersion(ctx context.Context, issueKey, versionID string) error {
	body, _ := json.Marshal(map[string]any{
		"update": map[string]any{"fixVersions": []map[string]any{{"add": map[string]string{"id": versionID}}}},
	})
	_, err := j.do(ctx, MutationTimeout, http.MethodPut, "/rest/api/3/issue/"+issueKey, body)
	return err
}

// RemoveIssueFromVersion removes a fix version from an issue.
func (j *Jira) RemoveIssueFromVersion(ctx context.Context, issueKey, versionID string) error {
	body, _ := json.Marshal(map[string]any{
		"update": map[string]any{"fixVersions": []map[string]any{{"remove": map[string]string{"id": versionID}}}},
	})
	_, err := j.do(ctx, MutationTimeout, http.MethodPut, "/rest/api/3/issue/"+issueKey, body)
	return err
}

func urlQueryEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-' || r == '_' || r == '.' || r == '~':
			b.WriteRune(r)
		case r == ' ':
			b.WriteString("%20")
		default:
			b.WriteString(fmt.Sprintf("%%%02X", r))
		}
	}
	return b.String()
}
