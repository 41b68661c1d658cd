package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nancybwi/DrainGuardHCM-sub000/internal/ai"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testParams() ai.AdjudicateParams {
	return ai.AdjudicateParams{
		ImageData:   []byte("fake-jpeg-bytes"),
		ContentType: "image/jpeg",
		Context: ai.ReportContext{
			LocationTitle: "Nguyen Hue walking street",
			Latitude:      10.7741,
			Longitude:     106.7037,
			SubmittedAt:   time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC),
			Description:   "Manhole cover missing",
			UserSeverity:  "high",
			TrafficImpact: "blocked",
		},
	}
}

// newTestProvider points the provider at a stub server with fast retries.
func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := New(Config{
		APIKey:  "test-key",
		Model:   "gemini-test",
		BaseURL: server.URL,
		ProviderConfig: ai.ProviderConfig{
			MaxRetries:     1,
			RetryBaseDelay: time.Millisecond,
			RequestTimeout: 5 * time.Second,
		},
	}, testLogger)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return p
}

// respondText wraps verdict text in the generateContent response envelope.
func respondText(w http.ResponseWriter, finishReason, text string) {
	resp := apiResponse{
		Candidates: []apiCandidate{
			{
				Content:      apiContent{Parts: []apiPart{{Text: text}}},
				FinishReason: finishReason,
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func TestAdjudicateSuccess(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.URL.Path != "/models/gemini-test:generateContent" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		respondText(w, "STOP", `{
			"is_valid": true,
			"confidence": 0.91,
			"detected_issue": "missing manhole cover",
			"severity": 4,
			"reasons": ["open drain visible", "roadway location"]
		}`)
	})

	verdict, err := p.Adjudicate(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Adjudicate() error: %v", err)
	}
	if !verdict.IsValid {
		t.Error("IsValid = false, want true")
	}
	if verdict.Confidence != 0.91 {
		t.Errorf("Confidence = %v, want 0.91", verdict.Confidence)
	}
	if verdict.Severity != 4 {
		t.Errorf("Severity = %d, want 4", verdict.Severity)
	}
	if verdict.DetectedIssue != "missing manhole cover" {
		t.Errorf("DetectedIssue = %q", verdict.DetectedIssue)
	}
	if len(verdict.Reasons) != 2 {
		t.Errorf("Reasons = %v, want 2 entries", verdict.Reasons)
	}
}

func TestAdjudicateStripsCodeFences(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		respondText(w, "STOP", "```json\n{\"is_valid\": true, \"confidence\": 0.8, \"severity\": 3}\n```")
	})

	verdict, err := p.Adjudicate(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Adjudicate() error: %v", err)
	}
	if !verdict.IsValid || verdict.Confidence != 0.8 {
		t.Errorf("verdict = %+v", verdict)
	}
}

func TestAdjudicateClampsOutOfRangeValues(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		respondText(w, "STOP", `{"is_valid": true, "confidence": 1.7, "severity": 9}`)
	})

	verdict, err := p.Adjudicate(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Adjudicate() error: %v", err)
	}
	if verdict.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want clamped to 1.0", verdict.Confidence)
	}
	if verdict.Severity != 5 {
		t.Errorf("Severity = %d, want clamped to 5", verdict.Severity)
	}
}

func TestAdjudicateHTTPErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"model missing", http.StatusNotFound, ai.EAIModelMissing},
		{"busy", http.StatusServiceUnavailable, ai.EAIBusy},
		{"rate limited", http.StatusTooManyRequests, ai.EAIRateLimit},
		{"unauthorized", http.StatusUnauthorized, ai.EAIUnauthorized},
		{"forbidden", http.StatusForbidden, ai.EAIUnauthorized},
		{"bad gateway", http.StatusBadGateway, ai.EAIUnavailable},
		{"gateway timeout", http.StatusGatewayTimeout, ai.EAIUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := p.Adjudicate(context.Background(), testParams())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAdjudicateRetriesTransientErrors(t *testing.T) {
	attempts := 0
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		respondText(w, "STOP", `{"is_valid": true, "confidence": 0.85, "severity": 2}`)
	})

	verdict, err := p.Adjudicate(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Adjudicate() error after retry: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if !verdict.IsValid {
		t.Error("IsValid = false after successful retry")
	}
}

func TestAdjudicateDoesNotRetryFinalErrors(t *testing.T) {
	attempts := 0
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := p.Adjudicate(context.Background(), testParams())
	if !errors.Is(err, ai.EAIUnauthorized) {
		t.Fatalf("error = %v, want EAIUnauthorized", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (auth failures are final)", attempts)
	}
}

func TestAdjudicateTruncatedResponses(t *testing.T) {
	t.Run("max tokens finish reason", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			respondText(w, "MAX_TOKENS", `{"is_valid": true,`)
		})
		_, err := p.Adjudicate(context.Background(), testParams())
		if !errors.Is(err, ai.EAITruncated) {
			t.Errorf("error = %v, want EAITruncated", err)
		}
	})

	t.Run("unbalanced braces caught before decode", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			respondText(w, "STOP", `{"is_valid": true, "nested": {"a": 1}`)
		})
		_, err := p.Adjudicate(context.Background(), testParams())
		if !errors.Is(err, ai.EAITruncated) {
			t.Errorf("error = %v, want EAITruncated", err)
		}
	})
}

func TestAdjudicateSafetyBlocked(t *testing.T) {
	t.Run("candidate finish reason", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			respondText(w, "SAFETY", "")
		})
		_, err := p.Adjudicate(context.Background(), testParams())
		if !errors.Is(err, ai.EAISafetyBlocked) {
			t.Errorf("error = %v, want EAISafetyBlocked", err)
		}
	})

	t.Run("blocked prompt with no candidates", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			resp := apiResponse{PromptFeedback: &apiPromptFeedback{BlockReason: "SAFETY"}}
			_ = json.NewEncoder(w).Encode(resp)
		})
		_, err := p.Adjudicate(context.Background(), testParams())
		if !errors.Is(err, ai.EAISafetyBlocked) {
			t.Errorf("error = %v, want EAISafetyBlocked", err)
		}
	})
}

func TestAdjudicateEmptyAndMalformedResponses(t *testing.T) {
	t.Run("no candidates", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(apiResponse{})
		})
		_, err := p.Adjudicate(context.Background(), testParams())
		if !errors.Is(err, ai.EAINoResponse) {
			t.Errorf("error = %v, want EAINoResponse", err)
		}
	})

	t.Run("empty text part", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			respondText(w, "STOP", "")
		})
		_, err := p.Adjudicate(context.Background(), testParams())
		if !errors.Is(err, ai.EAINoResponse) {
			t.Errorf("error = %v, want EAINoResponse", err)
		}
	})

	t.Run("prose instead of json", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			respondText(w, "STOP", "I cannot analyze this image.")
		})
		_, err := p.Adjudicate(context.Background(), testParams())
		if !errors.Is(err, ai.EAIMalformed) {
			t.Errorf("error = %v, want EAIMalformed", err)
		}
	})

	t.Run("error envelope despite 200", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			resp := apiResponse{Error: &apiError{Code: 500, Message: "internal"}}
			_ = json.NewEncoder(w).Encode(resp)
		})
		_, err := p.Adjudicate(context.Background(), testParams())
		if err == nil {
			t.Fatal("expected error from 200 error envelope")
		}
	})
}

func TestAdjudicateValidatesParams(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called for invalid params")
	})

	tests := []struct {
		name   string
		mutate func(*ai.AdjudicateParams)
	}{
		{"empty image", func(p *ai.AdjudicateParams) { p.ImageData = nil }},
		{"missing content type", func(p *ai.AdjudicateParams) { p.ContentType = "" }},
		{"unsupported content type", func(p *ai.AdjudicateParams) { p.ContentType = "image/gif" }},
		{"oversized image", func(p *ai.AdjudicateParams) { p.ImageData = make([]byte, MaxImageSize+1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := testParams()
			tt.mutate(&params)
			if _, err := p.Adjudicate(context.Background(), params); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []string{
		`{"a": 1}`,
		"```json\n{\"a\": 1}\n```",
		"```\n{\"a\": 1}\n```",
	}
	for _, in := range tests {
		if got := strings.TrimSpace(stripCodeFences(in)); got != `{"a": 1}` {
			t.Errorf("stripCodeFences(%q) = %q after trim, want %q", in, got, `{"a": 1}`)
		}
	}
}
