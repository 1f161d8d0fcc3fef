package notify_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"threadpulse.app/pulse/internal/model"
	"threadpulse.app/pulse/internal/notify"
)

var _ = Describe("Notifier", func() {
	var (
		ctx           context.Context
		conversations *mockConversationStore
		notifications *mockNotificationStore
		poster        *mockPoster
		conv          *model.Conversation
		insight       *model.Insight
	)

	BeforeEach(func() {
		ctx = context.Background()
		conversations = &mockConversationStore{}
		notifications = &mockNotificationStore{}
		poster = &mockPoster{}
		conv = &model.Conversation{
			ID:        42,
			ChannelID: "general",
		}
		insight = &model.Insight{
			ID:             7,
			ConversationID: 42,
			Worthy:         true,
			Confidence:     0.9,
			Topic:          "queue migration",
			Summary:        "the team agreed to migrate",
			SuggestedPost:  "We're moving to the new queue next sprint.",
		}
	})

	newNotifier := func(dryRun bool) *notify.Notifier {
		return notify.NewNotifier(conversations, notifications, poster, dryRun, nil)
	}

	It("delivers and records the first notification", func() {
		delivery, err := newNotifier(false).Notify(ctx, insight, conv)
		Expect(err).NotTo(HaveOccurred())
		Expect(delivery.Status).To(Equal(notify.StatusDelivered))
		Expect(delivery.ExternalMessageID).To(Equal("ext-msg-1"))

		Expect(poster.postCalls).To(Equal(1))
		Expect(poster.lastText).To(ContainSubstring("queue migration"))
		Expect(poster.lastText).To(ContainSubstring("We're moving to the new queue"))

		Expect(notifications.created).To(HaveLen(1))
		Expect(notifications.created[0].ConversationID).To(Equal(int64(42)))
		Expect(notifications.created[0].Type).To(Equal(model.NotificationTypeInsightDetected))
		Expect(notifications.created[0].ExternalMessageID).To(Equal("ext-msg-1"))

		Expect(conv.Notified).To(BeTrue())
	})

	It("skips delivery when the snapshot is already notified", func() {
		conv.Notified = true

		delivery, err := newNotifier(false).Notify(ctx, insight, conv)
		Expect(err).NotTo(HaveOccurred())
		Expect(delivery.Status).To(Equal(notify.StatusAlreadyNotified))
		Expect(poster.postCalls).To(Equal(0))
		Expect(conversations.markNotifiedCalls).To(Equal(0))
	})

	It("skips delivery when another caller won the claim", func() {
		conversations.markNotifiedFn = func(context.Context, int64) (bool, error) {
			return false, nil
		}

		delivery, err := newNotifier(false).Notify(ctx, insight, conv)
		Expect(err).NotTo(HaveOccurred())
		Expect(delivery.Status).To(Equal(notify.StatusAlreadyNotified))
		Expect(poster.postCalls).To(Equal(0))
	})

	It("suppresses delivery in dry run without claiming the flag", func() {
		delivery, err := newNotifier(true).Notify(ctx, insight, conv)
		Expect(err).NotTo(HaveOccurred())
		Expect(delivery.Status).To(Equal(notify.StatusDryRun))
		Expect(poster.postCalls).To(Equal(0))
		Expect(conversations.markNotifiedCalls).To(Equal(0))
		Expect(conv.Notified).To(BeFalse())
	})

	It("leaves the claim standing when delivery fails", func() {
		poster.postFn = func(context.Context, string, *string, string) (string, error) {
			return "", errors.New("platform down")
		}

		_, err := newNotifier(false).Notify(ctx, insight, conv)
		Expect(err).To(HaveOccurred())
		Expect(conversations.markNotifiedCalls).To(Equal(1))
		Expect(conv.Notified).To(BeTrue())
		Expect(notifications.created).To(BeEmpty())
	})

	It("surfaces a failure to write the delivery record", func() {
		notifications.createFn = func(context.Context, *model.NotificationRecord) error {
			return errors.New("db down")
		}

		_, err := newNotifier(false).Notify(ctx, insight, conv)
		Expect(err).To(HaveOccurred())
		Expect(poster.postCalls).To(Equal(1))
	})

	Describe("FormatPayload", func() {
		It("prefers the generated post", func() {
			payload := notify.FormatPayload(insight)
			Expect(payload).To(HavePrefix("Something worth sharing: queue migration"))
			Expect(payload).To(ContainSubstring(insight.SuggestedPost))
		})

		It("falls back to the summary when generation was skipped", func() {
			insight.SuggestedPost = ""
			payload := notify.FormatPayload(insight)
			Expect(payload).To(ContainSubstring(insight.Summary))
		})

		It("handles a missing topic", func() {
			insight.Topic = ""
			payload := notify.FormatPayload(insight)
			Expect(payload).To(HavePrefix("Something worth sharing came up"))
		})
	})
})
