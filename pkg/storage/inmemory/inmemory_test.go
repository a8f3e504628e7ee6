package inmemory_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmem/pkg/storage"
	"github.com/papercomputeco/chatmem/pkg/storage/inmemory"
	"github.com/papercomputeco/chatmem/pkg/storage/storagetest"
)

var _ = Describe("Driver", func() {
	storagetest.DriverSpecs(func() storage.Driver {
		return inmemory.NewDriver()
	})

	It("returns copies that callers can't mutate", func() {
		ctx := context.Background()
		d := inmemory.NewDriver()
		_, err := d.CreateConversation(ctx, "c1", "title")
		Expect(err).NotTo(HaveOccurred())

		conv, err := d.GetConversation(ctx, "c1")
		Expect(err).NotTo(HaveOccurred())
		conv.Title = "changed"

		again, err := d.GetConversation(ctx, "c1")
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Title).To(Equal("title"))
	})

	It("handles concurrent writers", func() {
		ctx := context.Background()
		d := inmemory.NewDriver()
		_, err := d.CreateConversation(ctx, "c1", "title")
		Expect(err).NotTo(HaveOccurred())

		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				_, err := d.SaveMemory(ctx, "c1", []storage.MemoryItem{storage.TopicItem("go")})
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		topics, err := d.ListTopics(ctx, "c1")
		Expect(err).NotTo(HaveOccurred())
		Expect(topics).To(HaveLen(1))
		Expect(topics[0].Frequency).To(Equal(20))
	})
})
