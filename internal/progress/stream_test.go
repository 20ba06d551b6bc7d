package progress

import (
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("stream", func() {
	Context("subscribe and publish", func() {
		It("delivers events to a subscriber in emission order", func() {
			stream := NewStream()
			sub := stream.Subscribe("job-1")
			defer stream.Unsubscribe(sub)

			for i := 0; i < 5; i++ {
				stream.Publish("job-1", Event{JobID: "job-1", Kind: KindProgress, Percent: i * 10})
			}

			for i := 0; i < 5; i++ {
				var ev Event
				Eventually(sub.Events()).Should(Receive(&ev))
				Expect(ev.Percent).To(Equal(i * 10))
			}
		})

		It("does not leak events across jobs", func() {
			stream := NewStream()
			sub := stream.Subscribe("job-1")
			defer stream.Unsubscribe(sub)

			stream.Publish("job-2", Event{JobID: "job-2", Kind: KindProgress})
			Consistently(sub.Events()).ShouldNot(Receive())
		})

		It("drops events published with no subscriber", func() {
			stream := NewStream()
			stream.Publish("job-1", Event{JobID: "job-1", Kind: KindProgress})

			sub := stream.Subscribe("job-1")
			defer stream.Unsubscribe(sub)
			// no backlog replay
			Consistently(sub.Events()).ShouldNot(Receive())
		})

		It("fans out to every subscriber of the same job", func() {
			stream := NewStream()
			sub1 := stream.Subscribe("job-1")
			sub2 := stream.Subscribe("job-1")
			defer stream.Unsubscribe(sub1)
			defer stream.Unsubscribe(sub2)

			stream.Publish("job-1", Event{JobID: "job-1", Kind: KindComplete})

			Eventually(sub1.Events()).Should(Receive())
			Eventually(sub2.Events()).Should(Receive())
		})

		It("drops the overflowing event for a slow subscriber without blocking", func() {
			stream := NewStream(WithSubscriberBuffer(2))
			sub := stream.Subscribe("job-1")
			defer stream.Unsubscribe(sub)

			done := make(chan struct{})
			go func() {
				defer close(done)
				for i := 0; i < 10; i++ {
					stream.Publish("job-1", Event{JobID: "job-1", Kind: KindProgress, Percent: i})
				}
			}()
			Eventually(done).Should(BeClosed())

			// first two made it, the rest were dropped
			var ev Event
			Eventually(sub.Events()).Should(Receive(&ev))
			Expect(ev.Percent).To(Equal(0))
			Eventually(sub.Events()).Should(Receive(&ev))
			Expect(ev.Percent).To(Equal(1))
			Consistently(sub.Events()).ShouldNot(Receive())
		})
	})

	Context("unsubscribe", func() {
		It("removes the handle and closes its channel", func() {
			stream := NewStream()
			sub := stream.Subscribe("job-1")
			Expect(stream.SubscriberCount("job-1")).To(Equal(1))

			stream.Unsubscribe(sub)
			Expect(stream.SubscriberCount("job-1")).To(Equal(0))
			Eventually(sub.Events()).Should(BeClosed())
		})

		It("is safe to call twice and with nil", func() {
			stream := NewStream()
			sub := stream.Subscribe("job-1")

			stream.Unsubscribe(sub)
			stream.Unsubscribe(sub)
			stream.Unsubscribe(nil)
			Expect(stream.SubscriberCount("job-1")).To(Equal(0))
		})
	})
})

var _ = Describe("activity log", func() {
	It("keeps entries in insertion order below the cap", func() {
		log := NewActivityLog(10)
		for i := 0; i < 3; i++ {
			log.Append("technology", fmt.Sprintf("step %d", i))
		}

		entries := log.Snapshot()
		Expect(entries).To(HaveLen(3))
		Expect(entries[0].Message).To(Equal("step 0"))
		Expect(entries[2].Message).To(Equal("step 2"))
		Expect(entries[0].Timestamp).To(BeTemporally("~", time.Now(), time.Minute))
	})

	It("drops the oldest entries once the cap is exceeded", func() {
		log := NewActivityLog(5)
		for i := 0; i < 8; i++ {
			log.Append("seo", fmt.Sprintf("step %d", i))
		}

		entries := log.Snapshot()
		Expect(entries).To(HaveLen(5))
		Expect(entries[0].Message).To(Equal("step 3"))
		Expect(entries[4].Message).To(Equal("step 7"))
		Expect(log.Len()).To(Equal(5))
	})

	It("defaults the capacity when given a non-positive one", func() {
		log := NewActivityLog(0)
		log.Append("budget", "only entry")
		Expect(log.Snapshot()).To(HaveLen(1))
	})
})
