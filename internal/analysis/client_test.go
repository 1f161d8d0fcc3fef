package analysis_test

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"threadpulse.app/pulse/common/llm"
	"threadpulse.app/pulse/core/config"
	"threadpulse.app/pulse/internal/analysis"
	"threadpulse.app/pulse/internal/ratelimit"
)

// fakeChatClient implements llm.ChatClient for testing.
type fakeChatClient struct {
	completeFn func(ctx context.Context, req llm.Request) (*llm.Response, error)
	callCount  int
}

func (f *fakeChatClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.callCount++
	if f.completeFn != nil {
		return f.completeFn(ctx, req)
	}
	return nil, errors.New("fake not configured")
}

func (f *fakeChatClient) Model() string { return "test-model" }

func respondWith(content string) func(context.Context, llm.Request) (*llm.Response, error) {
	return func(context.Context, llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: content, FinishReason: "stop"}, nil
	}
}

func testAnalysisConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		RequestTimeout:      time.Second,
		MaxRetries:          2,
		RetryBaseDelay:      time.Millisecond,
		ConfidenceThreshold: 0.7,
		MaxPostLength:       280,
	}
}

func newTestClient(chat llm.ChatClient) *analysis.Client {
	return analysis.NewClient(chat, ratelimit.New(0, 0), testAnalysisConfig(), nil)
}

var _ = Describe("Client", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("CheckWorthiness", func() {
		It("parses a clean JSON response", func() {
			chat := &fakeChatClient{completeFn: respondWith(
				`{"worthy": true, "confidence": 0.9, "topic": "queue migration", "summary": "team agreed to migrate", "framing": "casual"}`)}

			result, err := newTestClient(chat).CheckWorthiness(ctx, "some conversation")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Worthy).To(BeTrue())
			Expect(result.Confidence).To(BeNumerically("==", 0.9))
			Expect(result.Topic).To(Equal("queue migration"))
		})

		It("extracts JSON wrapped in prose", func() {
			chat := &fakeChatClient{completeFn: respondWith(
				`Sure! Here's my assessment: {"worthy": true, "confidence": 0.85, "topic": "incident retro"} hope that helps!`)}

			result, err := newTestClient(chat).CheckWorthiness(ctx, "text")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Worthy).To(BeTrue())
			Expect(result.Topic).To(Equal("incident retro"))
		})

		It("defaults to not worthy when the response has no JSON", func() {
			chat := &fakeChatClient{completeFn: respondWith("I cannot evaluate this conversation")}

			result, err := newTestClient(chat).CheckWorthiness(ctx, "text")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Worthy).To(BeFalse())
		})

		It("forces worthy results below the confidence threshold to not worthy", func() {
			chat := &fakeChatClient{completeFn: respondWith(
				`{"worthy": true, "confidence": 0.5, "topic": "low signal"}`)}

			result, err := newTestClient(chat).CheckWorthiness(ctx, "text")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Worthy).To(BeFalse())
			Expect(result.Confidence).To(BeNumerically("==", 0.5))
		})

		It("keeps not-worthy results below the threshold unchanged", func() {
			chat := &fakeChatClient{completeFn: respondWith(
				`{"worthy": false, "confidence": 0.2}`)}

			result, err := newTestClient(chat).CheckWorthiness(ctx, "text")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Worthy).To(BeFalse())
		})

		It("retries transient failures and succeeds", func() {
			chat := &fakeChatClient{}
			chat.completeFn = func(context.Context, llm.Request) (*llm.Response, error) {
				if chat.callCount < 3 {
					return nil, errors.New("temporary outage")
				}
				return &llm.Response{Content: `{"worthy": false, "confidence": 0.1}`}, nil
			}

			result, err := newTestClient(chat).CheckWorthiness(ctx, "text")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Worthy).To(BeFalse())
			Expect(chat.callCount).To(Equal(3))
		})

		It("surfaces the last error once retries are exhausted", func() {
			chat := &fakeChatClient{completeFn: func(context.Context, llm.Request) (*llm.Response, error) {
				return nil, errors.New("permanent outage")
			}}

			_, err := newTestClient(chat).CheckWorthiness(ctx, "text")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("permanent outage"))
			Expect(chat.callCount).To(Equal(3))
		})

		It("propagates rate limiting without consuming retries", func() {
			chat := &fakeChatClient{completeFn: respondWith(`{"worthy": false}`)}
			limiter := ratelimit.New(1, 0)
			client := analysis.NewClient(chat, limiter, testAnalysisConfig(), nil)

			_, err := client.CheckWorthiness(ctx, "first")
			Expect(err).NotTo(HaveOccurred())

			_, err = client.CheckWorthiness(ctx, "second")
			Expect(err).To(HaveOccurred())
			Expect(analysis.IsRateLimited(err)).To(BeTrue())
			Expect(chat.callCount).To(Equal(1))
		})
	})

	Describe("GeneratePost", func() {
		It("returns the trimmed completion", func() {
			chat := &fakeChatClient{completeFn: respondWith("  A crisp post about the migration.  \n")}

			post, err := newTestClient(chat).GeneratePost(ctx, "migration", "summary", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(post).To(Equal("A crisp post about the migration."))
		})

		It("truncates output past the length ceiling", func() {
			chat := &fakeChatClient{completeFn: respondWith(strings.Repeat("x", 500))}

			post, err := newTestClient(chat).GeneratePost(ctx, "topic", "summary", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(post).To(HaveLen(280))
		})
	})

	Describe("MergeSummary", func() {
		It("returns the trimmed merged summary", func() {
			chat := &fakeChatClient{completeFn: respondWith("\nMerged summary text.\n")}

			merged, err := newTestClient(chat).MergeSummary(ctx, "old", "new lines", 300)
			Expect(err).NotTo(HaveOccurred())
			Expect(merged).To(Equal("Merged summary text."))
		})
	})
})
