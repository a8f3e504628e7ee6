package memory_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmem/pkg/logger"
	"github.com/papercomputeco/chatmem/pkg/memory"
	"github.com/papercomputeco/chatmem/pkg/storage"
	"github.com/papercomputeco/chatmem/pkg/storage/inmemory"
)

type failingWriter struct{}

func (failingWriter) SaveMemory(context.Context, string, []storage.MemoryItem) (int, error) {
	return 0, errors.New("disk full")
}

var _ = Describe("Extractor", func() {
	var (
		ctx   context.Context
		store *inmemory.Driver
		ex    *memory.Extractor
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		_, err := store.CreateConversation(ctx, "c1", "t")
		Expect(err).NotTo(HaveOccurred())
		ex, err = memory.NewExtractor(store, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a store", func() {
		_, err := memory.NewExtractor(nil, logger.Nop())
		Expect(err).To(MatchError(memory.ErrNotConfigured))
	})

	It("stores a name fact and a like, returning 2", func() {
		n := ex.Extract(ctx, "c1", "my name is Alex and I like hiking", "Nice to meet you!")
		Expect(n).To(Equal(2))

		facts, err := store.ListFacts(ctx, "c1")
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(HaveLen(1))
		Expect(facts[0].Key).To(Equal("name"))
		Expect(facts[0].Value).To(Equal("alex"))

		prefs, err := store.ListPreferences(ctx, "c1")
		Expect(err).NotTo(HaveOccurred())
		Expect(prefs).To(HaveLen(1))
		Expect(prefs[0].Category).To(Equal("likes"))
		Expect(prefs[0].Item).To(Equal("hiking"))
	})

	It("returns 0 when nothing matches", func() {
		Expect(ex.Extract(ctx, "c1", "hello there", "")).To(BeZero())
	})

	It("counts repeated topics and increments their frequency", func() {
		Expect(ex.Extract(ctx, "c1", "coding all day, more coding tonight", "")).To(Equal(2))

		topics, err := store.ListTopics(ctx, "c1")
		Expect(err).NotTo(HaveOccurred())
		Expect(topics).To(HaveLen(1))
		Expect(topics[0].Frequency).To(Equal(2))
	})

	It("swallows storage failures and reports zero", func() {
		ex, err := memory.NewExtractor(failingWriter{}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(ex.Extract(ctx, "c1", "my name is Alex", "")).To(BeZero())
	})

	It("reports zero for an unknown conversation", func() {
		Expect(ex.Extract(ctx, "missing", "my name is Alex", "")).To(BeZero())
	})
})
