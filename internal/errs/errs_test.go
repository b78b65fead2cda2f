package errs

import (
	"testing"
	"time"
)

func TestRetryClassificationHTTP(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		retryAfter string
		wantAction RetryAction
		wantAfter  time.Duration
	}{
		{"429 with header", 429, "45", RetryAfterAction, 45 * time.Second},
		{"500", 500, "", Retry, 0},
		{"503", 503, "", Retry, 0},
		{"404 not found", 404, "", NoRetry, 0},
		{"400 bad request", 400, "", NoRetry, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := ClassifyHTTP(c.status, c.retryAfter, "")
			if e == nil {
				t.Fatalf("expected an error for status %d", c.status)
			}
			if c.status == 404 {
				if e.Kind != NotFound {
					t.Fatalf("expected NotFound kind, got %v", e.Kind)
				}
				return
			}
			decision := e.Decide()
			if decision.Action != c.wantAction {
				t.Fatalf("expected action %v, got %v", c.wantAction, decision.Action)
			}
			if c.wantAction == RetryAfterAction && decision.After != c.wantAfter {
				t.Fatalf("expected after %v, got %v", c.wantAfter, decision.After)
			}
		})
	}
}

func TestNetworkErrorsAlwaysRetry(t *testing.T) {
	e := New(Network, "connection refused")
	if e.Decide().Action != Retry {
		t.Fatalf("expected network error to be retriable")
	}
}

func TestMessageHeuristicExtractsRetryAfter(t *testing.T) {
	e := New(Integration, "rate limited, please retry after 45 seconds")
	decision := e.Decide()
	if decision.Action != RetryAfterAction || decision.After != 45*time.Second {
		t.Fatalf("expected RetryAfter(45s), got %+v", decision)
	}
}

func TestNonRetriableKinds(t *testing.T) {
	for _, k := range []Kind{Configuration, IO, Parse, Storage, Git, Authentication, NotFound, LockConflict} {
		e := New(k, "boom")
		if e.Decide().Action != NoRetry {
			t.Fatalf("expected kind %v to be non-retriable", k)
		}
	}
}
