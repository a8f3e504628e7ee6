package prompt_test

import (
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmem/pkg/logger"
	"github.com/papercomputeco/chatmem/pkg/prompt"
	"github.com/papercomputeco/chatmem/pkg/storage"
	"github.com/papercomputeco/chatmem/pkg/storage/inmemory"
)

type staticRecaller []string

func (s staticRecaller) Relevant(context.Context, string, string) []string {
	return s
}

func msg(role storage.Role, content string) *storage.Message {
	return &storage.Message{Role: role, Content: content}
}

const (
	user      = "<|start_header_id|>user<|end_header_id|>\n\n"
	assistant = "<|start_header_id|>assistant<|end_header_id|>\n\n"
	eot       = "<|eot_id|>"
)

var _ = Describe("Pair", func() {
	It("drops a trailing unanswered user message", func() {
		exchanges := prompt.Pair([]*storage.Message{
			msg(storage.RoleUser, "A"),
			msg(storage.RoleAssistant, "B"),
			msg(storage.RoleUser, "C"),
		})
		Expect(exchanges).To(Equal([]prompt.Exchange{{User: "A", Assistant: "B"}}))
	})

	It("skips orphan assistant messages", func() {
		exchanges := prompt.Pair([]*storage.Message{
			msg(storage.RoleAssistant, "hello"),
			msg(storage.RoleUser, "A"),
			msg(storage.RoleAssistant, "B"),
			msg(storage.RoleAssistant, "B again"),
		})
		Expect(exchanges).To(Equal([]prompt.Exchange{{User: "A", Assistant: "B"}}))
	})

	It("replaces a pending user message that never got a reply", func() {
		exchanges := prompt.Pair([]*storage.Message{
			msg(storage.RoleUser, "lost"),
			msg(storage.RoleUser, "A"),
			msg(storage.RoleAssistant, "B"),
		})
		Expect(exchanges).To(Equal([]prompt.Exchange{{User: "A", Assistant: "B"}}))
	})

	It("returns nothing for an empty history", func() {
		Expect(prompt.Pair(nil)).To(BeEmpty())
	})
})

var _ = Describe("Assembler", func() {
	var (
		ctx   context.Context
		store *inmemory.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		_, err := store.CreateConversation(ctx, "c1", "t")
		Expect(err).NotTo(HaveOccurred())
	})

	appendAll := func(pairs ...string) {
		for i, content := range pairs {
			role := storage.RoleUser
			if i%2 == 1 {
				role = storage.RoleAssistant
			}
			_, err := store.AppendMessage(ctx, "c1", role, content, 0)
			Expect(err).NotTo(HaveOccurred())
		}
	}

	It("renders just the new turn without history", func() {
		a := prompt.NewAssembler(store, nil, prompt.Limits{}, logger.Nop())
		Expect(a.Build(ctx, "c1", "hi")).To(Equal(user + "hi" + eot + assistant))
	})

	It("re-asks an unanswered message exactly once", func() {
		appendAll("A", "B", "C")
		a := prompt.NewAssembler(store, nil, prompt.Limits{}, logger.Nop())

		out := a.Build(ctx, "c1", "C")
		Expect(out).To(Equal(user + "A" + eot + assistant + "B" + eot + user + "C" + eot + assistant))
		Expect(strings.Count(out, "C")).To(Equal(1))
	})

	It("prefixes the memory block to the new turn", func() {
		a := prompt.NewAssembler(store, staticRecaller{"Facts about you: name: alex", "Recent experience: visited rome"}, prompt.Limits{}, logger.Nop())

		Expect(a.Build(ctx, "c1", "hello")).To(Equal(
			user + "\n[Memory Context: Facts about you: name: alex; Recent experience: visited rome]\nhello" + eot + assistant,
		))
	})

	It("keeps the full history when limits are not enforced", func() {
		appendAll("1", "a", "2", "b", "3", "c")
		a := prompt.NewAssembler(store, nil, prompt.Limits{MaxPairs: 1, MaxTokens: 1}, logger.Nop())

		Expect(strings.Count(a.Build(ctx, "c1", "x"), user)).To(Equal(4))
	})

	It("drops the oldest exchanges beyond max pairs when enforced", func() {
		appendAll("1", "a", "2", "b", "3", "c")
		a := prompt.NewAssembler(store, nil, prompt.Limits{Enforce: true, MaxPairs: 2}, logger.Nop())

		out := a.Build(ctx, "c1", "x")
		Expect(out).NotTo(ContainSubstring(user + "1"))
		Expect(out).To(HavePrefix(user + "2" + eot))
	})

	It("drops the oldest exchanges beyond max tokens when enforced", func() {
		long := strings.Repeat("w", 400)
		appendAll(long, long, "short", "ok")
		a := prompt.NewAssembler(store, nil, prompt.Limits{Enforce: true, MaxTokens: 50}, logger.Nop())

		out := a.Build(ctx, "c1", "x")
		Expect(out).NotTo(ContainSubstring(long))
		Expect(out).To(HavePrefix(user + "short" + eot))
	})
})

var _ = Describe("EstimateTokens", func() {
	It("counts four characters per token", func() {
		Expect(prompt.EstimateTokens("")).To(Equal(0))
		Expect(prompt.EstimateTokens("abc")).To(Equal(0))
		Expect(prompt.EstimateTokens("abcdefgh")).To(Equal(2))
	})
})
