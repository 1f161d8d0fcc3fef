package buffer_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"threadpulse.app/pulse/core/config"
	"threadpulse.app/pulse/internal/buffer"
	"threadpulse.app/pulse/internal/kv"
	"threadpulse.app/pulse/internal/model"
)

// triggerRecorder collects triggers fired on the timer goroutine.
type triggerRecorder struct {
	mu       sync.Mutex
	triggers []model.Trigger
}

func (r *triggerRecorder) record(_ context.Context, t model.Trigger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, t)
}

func (r *triggerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.triggers)
}

func (r *triggerRecorder) last() model.Trigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.triggers[len(r.triggers)-1]
}

func makeEvent(user string, n int) model.Event {
	return model.Event{
		WorkspaceID: "ws1",
		ChannelID:   "general",
		UserID:      user,
		Text:        fmt.Sprintf("message %d", n),
		Timestamp:   time.Now(),
	}
}

var _ = Describe("Manager", func() {
	var (
		ctx      context.Context
		recorder *triggerRecorder
		mgr      *buffer.Manager
	)

	newManager := func(cfg config.BufferConfig) *buffer.Manager {
		return buffer.NewManager(kv.NewMemoryStore(), cfg, recorder.record, nil)
	}

	BeforeEach(func() {
		ctx = context.Background()
		recorder = &triggerRecorder{}
	})

	AfterEach(func() {
		if mgr != nil {
			mgr.Close()
		}
	})

	Describe("volume trigger", func() {
		BeforeEach(func() {
			mgr = newManager(config.BufferConfig{
				VolumeCap:     5,
				Overlap:       2,
				SilenceWindow: time.Hour, // never fires in this spec
				WindowTTL:     time.Minute,
			})
		})

		It("fires synchronously when the window reaches the cap", func() {
			for i := 1; i <= 4; i++ {
				Expect(mgr.Ingest(ctx, makeEvent("alice", i))).To(BeNil())
			}

			trigger := mgr.Ingest(ctx, makeEvent("alice", 5))
			Expect(trigger).NotTo(BeNil())
			Expect(trigger.Kind).To(Equal(model.TriggerVolume))
			Expect(trigger.Events).To(HaveLen(5))
			Expect(trigger.Events[0].Text).To(Equal("message 1"))
		})

		It("retains the overlap tail for the next window", func() {
			for i := 1; i <= 5; i++ {
				mgr.Ingest(ctx, makeEvent("alice", i))
			}

			// Overlap is 2, so the next window starts with messages 4 and 5
			// and fills to the cap after 3 more events.
			var trigger *model.Trigger
			for i := 6; i <= 8; i++ {
				trigger = mgr.Ingest(ctx, makeEvent("alice", i))
			}
			Expect(trigger).NotTo(BeNil())
			Expect(trigger.Events).To(HaveLen(5))
			Expect(trigger.Events[0].Text).To(Equal("message 4"))
			Expect(trigger.Events[4].Text).To(Equal("message 8"))
		})

		It("keeps windows independent per conversation key", func() {
			for i := 1; i <= 4; i++ {
				mgr.Ingest(ctx, makeEvent("alice", i))
			}
			other := makeEvent("bob", 1)
			other.ChannelID = "random"
			Expect(mgr.Ingest(ctx, other)).To(BeNil())

			trigger := mgr.Ingest(ctx, makeEvent("alice", 5))
			Expect(trigger).NotTo(BeNil())
			Expect(trigger.Events).To(HaveLen(5))
			for _, e := range trigger.Events {
				Expect(e.ChannelID).To(Equal("general"))
			}
		})
	})

	Describe("silence trigger", func() {
		BeforeEach(func() {
			mgr = newManager(config.BufferConfig{
				VolumeCap:     100,
				Overlap:       10,
				SilenceWindow: 100 * time.Millisecond,
				WindowTTL:     time.Minute,
			})
		})

		It("fires once the conversation goes quiet", func() {
			mgr.Ingest(ctx, makeEvent("alice", 1))
			mgr.Ingest(ctx, makeEvent("bob", 2))

			Eventually(recorder.count, 2*time.Second, 10*time.Millisecond).Should(Equal(1))
			trigger := recorder.last()
			Expect(trigger.Kind).To(Equal(model.TriggerSilence))
			Expect(trigger.Events).To(HaveLen(2))
		})

		It("debounces: each event pushes the deadline out", func() {
			mgr.Ingest(ctx, makeEvent("alice", 1))
			time.Sleep(60 * time.Millisecond)
			Expect(recorder.count()).To(Equal(0))

			mgr.Ingest(ctx, makeEvent("bob", 2))
			time.Sleep(60 * time.Millisecond)
			// Second ingest rearmed the timer, so nothing fired yet.
			Expect(recorder.count()).To(Equal(0))

			Eventually(recorder.count, 2*time.Second, 10*time.Millisecond).Should(Equal(1))
			Expect(recorder.last().Events).To(HaveLen(2))
			Consistently(recorder.count, 300*time.Millisecond, 20*time.Millisecond).Should(Equal(1))
		})

		It("clears the window fully, unlike the volume path", func() {
			mgr.Ingest(ctx, makeEvent("alice", 1))
			Eventually(recorder.count, 2*time.Second, 10*time.Millisecond).Should(Equal(1))

			mgr.Ingest(ctx, makeEvent("alice", 2))
			Eventually(recorder.count, 2*time.Second, 10*time.Millisecond).Should(Equal(2))
			Expect(recorder.last().Events).To(HaveLen(1))
			Expect(recorder.last().Events[0].Text).To(Equal("message 2"))
		})
	})

	Describe("trigger dispatch", func() {
		It("keeps ingesting while the silence callback is still running", func() {
			var once sync.Once
			started := make(chan struct{})
			release := make(chan struct{})
			mgr = buffer.NewManager(kv.NewMemoryStore(), config.BufferConfig{
				VolumeCap:     100,
				Overlap:       10,
				SilenceWindow: 50 * time.Millisecond,
				WindowTTL:     time.Minute,
			}, func(_ context.Context, _ model.Trigger) {
				once.Do(func() { close(started) })
				<-release
			}, nil)
			defer close(release)

			mgr.Ingest(ctx, makeEvent("alice", 1))
			Eventually(started, 2*time.Second, 10*time.Millisecond).Should(BeClosed())

			// The callback is blocked mid-flight; ingestion for the same key
			// must not wait on it.
			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				mgr.Ingest(ctx, makeEvent("alice", 2))
				close(done)
			}()
			Eventually(done, time.Second, 10*time.Millisecond).Should(BeClosed())
		})
	})

	Describe("Close", func() {
		It("cancels pending timers and ignores later events", func() {
			mgr = newManager(config.BufferConfig{
				VolumeCap:     100,
				Overlap:       10,
				SilenceWindow: 50 * time.Millisecond,
				WindowTTL:     time.Minute,
			})

			mgr.Ingest(ctx, makeEvent("alice", 1))
			mgr.Close()

			Expect(mgr.Ingest(ctx, makeEvent("alice", 2))).To(BeNil())
			Consistently(recorder.count, 300*time.Millisecond, 20*time.Millisecond).Should(Equal(0))
		})
	})
})
