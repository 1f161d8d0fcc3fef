package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"threadpulse.app/pulse/internal/http/handler"
	"threadpulse.app/pulse/internal/queue"
)

type fakeProducer struct {
	enqueueFn func(ctx context.Context, msg queue.EventMessage) error
	enqueued  []queue.EventMessage
}

func (f *fakeProducer) Enqueue(ctx context.Context, msg queue.EventMessage) error {
	f.enqueued = append(f.enqueued, msg)
	if f.enqueueFn != nil {
		return f.enqueueFn(ctx, msg)
	}
	return nil
}

func (f *fakeProducer) Close() error { return nil }

var _ = Describe("EventHandler", func() {
	var (
		producer *fakeProducer
		router   *gin.Engine
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		producer = &fakeProducer{}
		router = gin.New()
		h := handler.NewEventHandler(producer, "X-Trace-Id")
		router.POST("/api/v1/events/ingest", h.Ingest)
	})

	post := func(body string, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events/ingest", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("accepts a valid event and enqueues it", func() {
		w := post(`{
			"workspace_id": "ws1",
			"channel_id": "general",
			"thread_id": "t1",
			"user_id": "alice",
			"text": "should we migrate?"
		}`, nil)

		Expect(w.Code).To(Equal(http.StatusAccepted))
		Expect(producer.enqueued).To(HaveLen(1))

		event := producer.enqueued[0].Event
		Expect(event.WorkspaceID).To(Equal("ws1"))
		Expect(event.ChannelID).To(Equal("general"))
		Expect(*event.ThreadID).To(Equal("t1"))
		Expect(event.Timestamp).NotTo(BeZero())

		var resp map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp["conversation_key"]).To(Equal("ws1:general:t1"))
		Expect(resp["enqueued"]).To(BeTrue())
	})

	It("rejects an event missing required fields", func() {
		w := post(`{"workspace_id": "ws1", "text": "hi"}`, nil)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(producer.enqueued).To(BeEmpty())
	})

	It("rejects a body that is not JSON", func() {
		w := post("not json", nil)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("propagates the trace header onto the message", func() {
		w := post(`{
			"workspace_id": "ws1",
			"channel_id": "general",
			"user_id": "alice",
			"text": "hello"
		}`, map[string]string{"X-Trace-Id": "trace-99"})

		Expect(w.Code).To(Equal(http.StatusAccepted))
		Expect(producer.enqueued[0].TraceID).NotTo(BeNil())
		Expect(*producer.enqueued[0].TraceID).To(Equal("trace-99"))
	})

	It("returns 500 when the queue is unavailable", func() {
		producer.enqueueFn = func(context.Context, queue.EventMessage) error {
			return errors.New("redis down")
		}
		w := post(`{
			"workspace_id": "ws1",
			"channel_id": "general",
			"user_id": "alice",
			"text": "hello"
		}`, nil)
		Expect(w.Code).To(Equal(http.StatusInternalServerError))
	})
})
