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

// brokenTopics fails topic reads but serves everything else.
type brokenTopics struct {
	*inmemory.Driver
}

func (brokenTopics) ListTopics(context.Context, string) ([]*storage.Topic, error) {
	return nil, errors.New("connection reset")
}

var _ = Describe("Retriever", func() {
	var (
		ctx   context.Context
		store *inmemory.Driver
		r     *memory.Retriever
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		_, err := store.CreateConversation(ctx, "c1", "t")
		Expect(err).NotTo(HaveOccurred())

		_, err = store.SaveMemory(ctx, "c1", []storage.MemoryItem{
			storage.FactItem("name", "alex"),
			storage.FactItem("location", "berlin"),
			storage.PreferenceItem("likes", "hiking"),
			storage.PreferenceItem("likes", "tea"),
			storage.PreferenceItem("hates", "rain"),
			storage.TopicItem("python"),
			storage.TopicItem("python"),
			storage.ExperienceItem("visited rome", "I visited Rome"),
		})
		Expect(err).NotTo(HaveOccurred())

		r, err = memory.NewRetriever(store, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a store", func() {
		_, err := memory.NewRetriever(nil, logger.Nop())
		Expect(err).To(MatchError(memory.ErrNotConfigured))
	})

	It("summarizes facts and preferences for self queries", func() {
		Expect(r.Relevant(ctx, "c1", "Who am I?")).To(Equal([]string{
			"Facts about you: name: alex, location: berlin",
			"You hates: rain",
			"You likes: hiking, tea",
		}))
	})

	It("notes prior discussion of topics in the input", func() {
		Expect(r.Relevant(ctx, "c1", "Help me with Python")).To(Equal([]string{
			"Previous python discussions: 2 times",
		}))
	})

	It("recalls experiences sharing a word with the input", func() {
		Expect(r.Relevant(ctx, "c1", "What should I eat in Rome?")).To(Equal([]string{
			"Recent experience: visited rome",
		}))
	})

	It("returns nothing relevant for unrelated input", func() {
		Expect(r.Relevant(ctx, "c1", "tell me a joke")).To(BeEmpty())
	})

	It("only considers the five most recent experiences", func() {
		_, err := store.SaveMemory(ctx, "c1", []storage.MemoryItem{
			storage.ExperienceItem("learned go", "x"),
			storage.ExperienceItem("learned rust", "x"),
			storage.ExperienceItem("learned zig", "x"),
			storage.ExperienceItem("learned c", "x"),
			storage.ExperienceItem("learned java", "x"),
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(r.Relevant(ctx, "c1", "rome")).To(BeEmpty())
	})

	It("degrades to the lines gathered before a read failure", func() {
		r, err := memory.NewRetriever(brokenTopics{store}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Relevant(ctx, "c1", "tell me about me and python")).To(Equal([]string{
			"Facts about you: name: alex, location: berlin",
			"You hates: rain",
			"You likes: hiking, tea",
		}))
	})
})
