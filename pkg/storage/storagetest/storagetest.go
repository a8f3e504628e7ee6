// Package storagetest holds the behavior every storage.Driver must share.
// Backend test suites call DriverSpecs from inside a Describe block.
package storagetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmem/pkg/storage"
)

// DriverSpecs registers the ginkgo specs every driver must pass. newDriver is
// called before each one and must return an empty store.
func DriverSpecs(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			driver.Close()
		}
	})

	Describe("conversations", func() {
		It("creates and gets a conversation", func() {
			conv, err := driver.CreateConversation(ctx, "c1", "Hiking plans")
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.ID).To(Equal("c1"))
			Expect(conv.UpdatedAt).To(Equal(conv.CreatedAt))

			got, err := driver.GetConversation(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("Hiking plans"))
		})

		It("rejects a duplicate id with a storage error", func() {
			_, err := driver.CreateConversation(ctx, "c1", "one")
			Expect(err).NotTo(HaveOccurred())

			_, err = driver.CreateConversation(ctx, "c1", "two")
			var serr *storage.Error
			Expect(err).To(BeAssignableToTypeOf(serr))
		})

		It("returns NotFoundError for an unknown id", func() {
			_, err := driver.GetConversation(ctx, "missing")
			Expect(err).To(MatchError(storage.NotFoundError{ID: "missing"}))
		})

		It("lists conversations by last activity, newest first", func() {
			_, err := driver.CreateConversation(ctx, "old", "old")
			Expect(err).NotTo(HaveOccurred())
			time.Sleep(2 * time.Millisecond)
			_, err = driver.CreateConversation(ctx, "new", "new")
			Expect(err).NotTo(HaveOccurred())

			convs, err := driver.ListConversations(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(convs)).To(Equal([]string{"new", "old"}))

			time.Sleep(2 * time.Millisecond)
			_, err = driver.AppendMessage(ctx, "old", storage.RoleUser, "bump", 1)
			Expect(err).NotTo(HaveOccurred())

			convs, err = driver.ListConversations(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(convs)).To(Equal([]string{"old", "new"}))
		})

		It("returns an empty list for an empty store", func() {
			convs, err := driver.ListConversations(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(convs).To(BeEmpty())
		})
	})

	Describe("messages", func() {
		BeforeEach(func() {
			_, err := driver.CreateConversation(ctx, "c1", "t")
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns messages in insertion order", func() {
			contents := []string{"a", "b", "c", "d", "e", "f"}
			for i, c := range contents {
				role := storage.RoleUser
				if i%2 == 1 {
					role = storage.RoleAssistant
				}
				_, err := driver.AppendMessage(ctx, "c1", role, c, 0)
				Expect(err).NotTo(HaveOccurred())
			}

			msgs, err := driver.ListMessages(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(len(contents)))
			for i, m := range msgs {
				Expect(m.Content).To(Equal(contents[i]))
			}
			Expect(msgs[1].Role).To(Equal(storage.RoleAssistant))
		})

		It("bumps the conversation's last activity", func() {
			before, err := driver.GetConversation(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())

			time.Sleep(2 * time.Millisecond)
			msg, err := driver.AppendMessage(ctx, "c1", storage.RoleUser, "hello", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(msg.ID).NotTo(BeZero())

			after, err := driver.GetConversation(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(after.UpdatedAt.After(before.UpdatedAt)).To(BeTrue())
		})

		It("fails for an unknown conversation", func() {
			_, err := driver.AppendMessage(ctx, "missing", storage.RoleUser, "hello", 1)
			Expect(err).To(HaveOccurred())
		})

		It("rejects an unknown role", func() {
			_, err := driver.AppendMessage(ctx, "c1", storage.Role("system"), "hello", 1)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("memory", func() {
		BeforeEach(func() {
			_, err := driver.CreateConversation(ctx, "c1", "t")
			Expect(err).NotTo(HaveOccurred())
		})

		It("replaces a fact value without duplicating the key", func() {
			Expect(driver.UpsertFact(ctx, "c1", "name", "alex")).To(Succeed())
			Expect(driver.UpsertFact(ctx, "c1", "age", "30")).To(Succeed())
			Expect(driver.UpsertFact(ctx, "c1", "name", "sam")).To(Succeed())

			facts, err := driver.ListFacts(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(facts).To(HaveLen(2))
			Expect(facts[0].Key).To(Equal("name"))
			Expect(facts[0].Value).To(Equal("sam"))
			Expect(facts[1].Key).To(Equal("age"))
		})

		It("increments a repeated topic instead of adding a row", func() {
			Expect(driver.IncrementTopic(ctx, "c1", "python")).To(Succeed())
			Expect(driver.IncrementTopic(ctx, "c1", "python")).To(Succeed())

			topics, err := driver.ListTopics(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(topics).To(HaveLen(1))
			Expect(topics[0].Frequency).To(Equal(2))
		})

		It("keeps duplicate preferences", func() {
			Expect(driver.AppendPreference(ctx, "c1", "likes", "tea")).To(Succeed())
			Expect(driver.AppendPreference(ctx, "c1", "likes", "tea")).To(Succeed())

			prefs, err := driver.ListPreferences(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(prefs).To(HaveLen(2))
		})

		It("returns recent experiences newest first and honors the limit", func() {
			for _, e := range []string{"visited rome", "learned go", "bought a bike"} {
				Expect(driver.AppendExperience(ctx, "c1", e, "ctx")).To(Succeed())
				time.Sleep(time.Millisecond)
			}

			exps, err := driver.RecentExperiences(ctx, "c1", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(exps).To(HaveLen(2))
			Expect(exps[0].Experience).To(Equal("bought a bike"))
			Expect(exps[1].Experience).To(Equal("learned go"))
		})

		It("saves a batch of items and counts them", func() {
			n, err := driver.SaveMemory(ctx, "c1", []storage.MemoryItem{
				storage.FactItem("name", "alex"),
				storage.PreferenceItem("likes", "hiking"),
				storage.ExperienceItem("visited rome", "I visited Rome"),
				storage.TopicItem("python"),
				storage.TopicItem("python"),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(5))

			counts, err := driver.MemoryCounts(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(counts).To(Equal(storage.MemoryCounts{Facts: 1, Experiences: 1, Topics: 1}))
		})

		It("applies nothing when a batch fails", func() {
			n, err := driver.SaveMemory(ctx, "c1", []storage.MemoryItem{
				storage.FactItem("name", "alex"),
				{Kind: storage.MemoryKind("bogus")},
			})
			Expect(err).To(HaveOccurred())
			Expect(n).To(BeZero())

			facts, err := driver.ListFacts(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(facts).To(BeEmpty())
		})

		It("reports zero counts for an unknown conversation", func() {
			counts, err := driver.MemoryCounts(ctx, "missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(counts).To(Equal(storage.MemoryCounts{}))
		})
	})

	Describe("DeleteConversation", func() {
		It("removes the conversation and everything it owns", func() {
			_, err := driver.CreateConversation(ctx, "c1", "t")
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.CreateConversation(ctx, "c2", "keep")
			Expect(err).NotTo(HaveOccurred())

			for _, id := range []string{"c1", "c2"} {
				_, err = driver.AppendMessage(ctx, id, storage.RoleUser, "hi", 1)
				Expect(err).NotTo(HaveOccurred())
				_, err = driver.SaveMemory(ctx, id, []storage.MemoryItem{
					storage.FactItem("name", "alex"),
					storage.PreferenceItem("likes", "tea"),
					storage.ExperienceItem("visited rome", "ctx"),
					storage.TopicItem("ai"),
				})
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(driver.DeleteConversation(ctx, "c1")).To(Succeed())

			convs, err := driver.ListConversations(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(convs)).To(Equal([]string{"c2"}))

			msgs, err := driver.ListMessages(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(BeEmpty())

			prefs, err := driver.ListPreferences(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(prefs).To(BeEmpty())

			counts, err := driver.MemoryCounts(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(counts).To(Equal(storage.MemoryCounts{}))

			kept, err := driver.MemoryCounts(ctx, "c2")
			Expect(err).NotTo(HaveOccurred())
			Expect(kept).To(Equal(storage.MemoryCounts{Facts: 1, Experiences: 1, Topics: 1}))
		})

		It("is a no-op for an unknown id", func() {
			Expect(driver.DeleteConversation(ctx, "missing")).To(Succeed())
		})
	})
}

func ids(convs []*storage.Conversation) []string {
	out := make([]string, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.ID)
	}
	return out
}
