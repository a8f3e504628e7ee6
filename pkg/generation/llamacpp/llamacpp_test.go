package llamacpp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmem/pkg/generation"
	"github.com/papercomputeco/chatmem/pkg/generation/llamacpp"
)

var _ = Describe("Generator", func() {
	var (
		server   *httptest.Server
		received map[string]any
		healthy  bool
	)

	BeforeEach(func() {
		healthy = true
		received = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/health":
				if !healthy {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				fmt.Fprint(w, `{"status":"ok"}`)
			case "/completion":
				_ = json.NewDecoder(r.Body).Decode(&received)
				if received["stream"] == true {
					w.Header().Set("Content-Type", "text/event-stream")
					fmt.Fprint(w, "data: {\"content\":\"Hel\",\"stop\":false}\n\n")
					fmt.Fprint(w, "data: {\"content\":\"lo\",\"stop\":false}\n\n")
					fmt.Fprint(w, "data: {\"content\":\"\",\"stop\":true}\n\n")
					return
				}
				fmt.Fprint(w, `{"content":"Hello","stop":true}`)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("completes a prompt with the sampling parameters", func() {
		g := llamacpp.New(server.URL)
		out, err := g.Complete(context.Background(), "prompt", generation.DefaultParams)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("Hello"))

		Expect(received["prompt"]).To(Equal("prompt"))
		Expect(received["n_predict"]).To(BeNumerically("==", 512))
		Expect(received["temperature"]).To(BeNumerically("~", 0.7))
		Expect(received["stop"]).To(ConsistOf("<|eot_id|>"))
	})

	It("streams fragments until the stop chunk", func() {
		g := llamacpp.New(server.URL)
		var parts []string
		for tok, err := range g.Stream(context.Background(), "prompt", generation.DefaultParams) {
			Expect(err).NotTo(HaveOccurred())
			parts = append(parts, tok)
		}
		Expect(parts).To(Equal([]string{"Hel", "lo"}))
	})

	It("stops early when the consumer breaks", func() {
		g := llamacpp.New(server.URL)
		var parts []string
		for tok := range g.Stream(context.Background(), "prompt", generation.DefaultParams) {
			parts = append(parts, tok)
			break
		}
		Expect(parts).To(Equal([]string{"Hel"}))
	})

	It("loads once the server is healthy", func() {
		g := llamacpp.New(server.URL)
		Expect(g.Load(context.Background())).To(Succeed())
	})

	It("gives up loading when the context ends", func() {
		healthy = false
		g := llamacpp.New(server.URL)
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		Expect(g.Load(ctx)).To(HaveOccurred())
	})

	It("reports server errors", func() {
		g := llamacpp.New(server.URL + "/missing")
		_, err := g.Complete(context.Background(), "prompt", generation.DefaultParams)
		Expect(err).To(MatchError(ContainSubstring("status 404")))
	})

	It("refuses work after Close", func() {
		g := llamacpp.New(server.URL)
		Expect(g.Close()).To(Succeed())

		_, err := g.Complete(context.Background(), "prompt", generation.DefaultParams)
		Expect(err).To(MatchError(generation.ErrNotLoaded))
	})
})
