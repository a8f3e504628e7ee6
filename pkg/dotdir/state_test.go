package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmem/pkg/dotdir"
)

var _ = Describe("dotdir.Manager chat state", func() {
	var (
		tmpDir string
		m      *dotdir.Manager
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		m = dotdir.NewManager()
	})

	It("returns nil when no state has been saved", func() {
		state, err := m.LoadChatState(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(BeNil())
	})

	It("round trips the last chat", func() {
		Expect(m.SaveChatState(&dotdir.ChatState{ChatID: "abc", Title: "Hiking Plans"}, tmpDir)).To(Succeed())

		state, err := m.LoadChatState(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.ChatID).To(Equal("abc"))
		Expect(state.Title).To(Equal("Hiking Plans"))
	})

	It("rejects a nil state", func() {
		Expect(m.SaveChatState(nil, tmpDir)).To(HaveOccurred())
	})

	It("returns an error for invalid JSON", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "chat.json"), []byte("not json"), 0o600)).To(Succeed())

		state, err := m.LoadChatState(tmpDir)
		Expect(err).To(HaveOccurred())
		Expect(state).To(BeNil())
	})

	It("clears the state, tolerating a missing file", func() {
		Expect(m.SaveChatState(&dotdir.ChatState{ChatID: "abc"}, tmpDir)).To(Succeed())
		Expect(m.ClearChatState(tmpDir)).To(Succeed())
		Expect(m.ClearChatState(tmpDir)).To(Succeed())

		state, err := m.LoadChatState(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(BeNil())
	})
})
