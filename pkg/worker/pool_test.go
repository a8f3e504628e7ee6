package worker_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmem/pkg/eventstream"
	"github.com/papercomputeco/chatmem/pkg/logger"
	testutils "github.com/papercomputeco/chatmem/pkg/utils/test"
	"github.com/papercomputeco/chatmem/pkg/worker"
)

func testEvent(id string) *eventstream.TurnCommittedEvent {
	now := time.Now()
	return eventstream.NewTurnCommittedEvent(id, "hi", "hello", 0, false, now, now)
}

var _ = Describe("Worker Pool", func() {
	var (
		wp  *worker.Pool
		pub *testutils.MockPublisher
	)

	BeforeEach(func() {
		pub = testutils.NewMockPublisher()
		var err error
		wp, err = worker.NewPool(&worker.Config{
			Publisher: pub,
			Logger:    logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(wp.Close()).To(Succeed())
	})

	It("requires a publisher", func() {
		_, err := worker.NewPool(&worker.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("publishes enqueued events and drains on close", func() {
		for _, id := range []string{"a", "b", "c"} {
			Expect(wp.Enqueue(testEvent(id))).To(BeTrue())
		}
		Expect(wp.Close()).To(Succeed())

		Expect(pub.Events()).To(HaveLen(3))
		Expect(pub.Closed()).To(BeTrue())
	})

	It("drops events after close", func() {
		Expect(wp.Close()).To(Succeed())
		Expect(wp.Enqueue(testEvent("late"))).To(BeFalse())
		Expect(wp.Close()).To(Succeed())
	})

	It("keeps going when a publish fails", func() {
		pub.Fail = true
		Expect(wp.Enqueue(testEvent("a"))).To(BeTrue())
		Expect(wp.Close()).To(Succeed())
		Expect(pub.Events()).To(BeEmpty())
	})

	It("drops events when the queue is full", func() {
		blocked := &blockingPublisher{release: make(chan struct{})}
		small, err := worker.NewPool(&worker.Config{
			Publisher:  blocked,
			NumWorkers: 1,
			QueueSize:  1,
			Logger:     logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		// The first event occupies the worker, the second fills the queue.
		Expect(small.Enqueue(testEvent("1"))).To(BeTrue())
		Eventually(blocked.started).Should(BeTrue())
		Expect(small.Enqueue(testEvent("2"))).To(BeTrue())
		Expect(small.Enqueue(testEvent("3"))).To(BeFalse())

		close(blocked.release)
		Expect(small.Close()).To(Succeed())
	})
})
