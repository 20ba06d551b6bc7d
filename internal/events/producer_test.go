package events

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type testWriter struct {
	lock   sync.Mutex
	events []cloudevents.Event
	topics []string
}

func (w *testWriter) Write(_ context.Context, topic string, e cloudevents.Event) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.events = append(w.events, e)
	w.topics = append(w.topics, topic)
	return nil
}

func (w *testWriter) Close(_ context.Context) error { return nil }

func (w *testWriter) count() int {
	w.lock.Lock()
	defer w.lock.Unlock()
	return len(w.events)
}

var _ = Describe("event producer", func() {
	It("drains buffered events to the writer", func() {
		writer := &testWriter{}
		ep := NewEventProducer(writer)
		defer func() { _ = ep.Close() }()

		payload, err := json.Marshal(JobEvent{JobID: "job-1", Status: "running", Timestamp: time.Now().UTC()})
		Expect(err).To(BeNil())

		Expect(ep.Write(context.TODO(), JobMessageKind, bytes.NewReader(payload))).To(BeNil())

		Eventually(writer.count).Should(Equal(1))

		writer.lock.Lock()
		defer writer.lock.Unlock()
		Expect(writer.topics[0]).To(Equal(defaultTopic))
		Expect(writer.events[0].Type()).To(Equal(JobMessageKind))
		Expect(writer.events[0].Source()).To(Equal(eventSource))
	})

	It("honours a custom topic", func() {
		writer := &testWriter{}
		ep := NewEventProducer(writer, WithOutputTopic("audit.custom"))
		defer func() { _ = ep.Close() }()

		Expect(ep.Write(context.TODO(), SectionMessageKind, bytes.NewReader([]byte(`{}`)))).To(BeNil())

		Eventually(writer.count).Should(Equal(1))

		writer.lock.Lock()
		defer writer.lock.Unlock()
		Expect(writer.topics[0]).To(Equal("audit.custom"))
	})
})
