package e2e_test

import (
	"context"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ashosive/agent-runtime/citest/testutil"
)

var _ = Describe("Inference", func() {
	var (
		sessions *testutil.SessionManager
		sse      *testutil.SSEClient
	)

	BeforeEach(func() {
		sessions = testutil.NewSessionManager(client)
		mockOllama.SetReply("")
	})

	AfterEach(func() {
		if sse != nil {
			sse.Close()
			sse = nil
		}
		sessions.Cleanup()
	})

	Describe("Session pipeline", func() {
		It("should stream the seeded prompt's reply on start", func() {
			created, err := sessions.Create(map[string]any{
				"system_prompt":        "You are terse.",
				"user_prompt_snapshot": "tell me about goroutines",
				"model":                testModel,
			})
			Expect(err).NotTo(HaveOccurred())
			id := created.SessionID

			sse = testServer.SSEClient()
			Expect(sse.Connect(ctx, "/session/"+id+"/stream")).To(Succeed())

			_, _, err = client.Lifecycle(ctx, id, "start")
			Expect(err).NotTo(HaveOccurred())

			idle, err := sse.WaitForEvent("session.idle", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			var data testutil.IdleData
			Expect(idle.Decode(&data)).To(Succeed())
			Expect(data.Error).To(BeEmpty())
			Expect(data.Tokens).To(BeEquivalentTo(len(testutil.SplitTokens("echo: tell me about goroutines"))))

			Expect(testutil.NewEventMatcher(sse.GetAllEvents()).Tokens()).To(Equal("echo: tell me about goroutines"))

			s, err := client.GetSession(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Accounting.Requests).To(BeEquivalentTo(1))
			Expect(s.Accounting.OutputTokens).To(BeEquivalentTo(data.Tokens))
		})

		It("should emit placeholder tokens when no model is set", func() {
			created, err := sessions.Create(nil)
			Expect(err).NotTo(HaveOccurred())
			id := created.SessionID

			sse = testServer.SSEClient()
			Expect(sse.Connect(ctx, "/session/"+id+"/stream")).To(Succeed())

			_, _, err = client.Lifecycle(ctx, id, "start")
			Expect(err).NotTo(HaveOccurred())

			idle, err := sse.WaitForEvent("session.idle", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			var data testutil.IdleData
			Expect(idle.Decode(&data)).To(Succeed())
			Expect(data.Tokens).To(BeZero())
			Expect(data.Error).NotTo(BeEmpty())

			tokens := testutil.NewEventMatcher(sse.GetAllEvents()).FilterType("session.token")
			Expect(tokens).To(HaveLen(3))
			for i, evt := range tokens {
				var tok testutil.TokenData
				Expect(evt.Decode(&tok)).To(Succeed())
				Expect(tok.Synthetic).To(BeTrue())
				Expect(tok.Token).To(Equal("fake token " + string(rune('1'+i))))
			}
		})

		It("should close the stream when the session ends", func() {
			created, err := sessions.Create(nil)
			Expect(err).NotTo(HaveOccurred())
			id := created.SessionID

			sse = testServer.SSEClient()
			Expect(sse.Connect(ctx, "/session/"+id+"/stream")).To(Succeed())

			_, _, err = client.Lifecycle(ctx, id, "end")
			Expect(err).NotTo(HaveOccurred())

			ended, err := sse.WaitForEvent("session.ended", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			var data testutil.TransitionData
			Expect(ended.Decode(&data)).To(Succeed())
			Expect(data.PrevState).To(Equal("Pending"))
			Expect(data.NewState).To(Equal("Ended"))

			Eventually(sse.Events(), 5*time.Second).Should(BeClosed())
		})
	})

	Describe("Direct inference", func() {
		var id string

		BeforeEach(func() {
			created, err := sessions.Create(map[string]any{
				"system_prompt": "You are terse.",
				"model":         testModel,
			})
			Expect(err).NotTo(HaveOccurred())
			id = created.SessionID
		})

		It("should require an active session", func() {
			_, resp, err := client.Infer(ctx, id, "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("should answer with the user turn applied", func() {
			_, _, err := client.Lifecycle(ctx, id, "start")
			Expect(err).NotTo(HaveOccurred())

			reply, resp, err := client.Infer(ctx, id, "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(reply).To(Equal("echo: hello"))

			var last testutil.MockRequest
			for _, r := range mockOllama.GetRequests() {
				if !r.Stream {
					last = r
				}
			}
			Expect(last.Model).To(Equal(testModel))
			Expect(last.Prompt).To(Equal("You are terse.\n\nUser: hello"))

			s, err := client.GetSession(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.ContextSeed.UserPromptSnapshot).NotTo(BeNil())
			Expect(*s.ContextSeed.UserPromptSnapshot).To(Equal("hello"))
		})

		It("should retry a failing backend", func() {
			_, _, err := client.Lifecycle(ctx, id, "start")
			Expect(err).NotTo(HaveOccurred())

			mockOllama.FailNext(1)
			reply, resp, err := client.Infer(ctx, id, "again")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(reply).To(Equal("echo: again"))
		})

		It("should stream tokens as server-sent events", func() {
			_, _, err := client.Lifecycle(ctx, id, "start")
			Expect(err).NotTo(HaveOccurred())

			mockOllama.SetReply("one two three")

			streamCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			stream, err := client.PostStreaming(streamCtx, "/session/"+id+"/infer",
				map[string]any{"input": "count", "stream": true})
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()
			Expect(stream.StatusCode).To(Equal(http.StatusOK))

			events, err := stream.ReadAllEvents()
			Expect(err).NotTo(HaveOccurred())
			Expect(events).NotTo(BeEmpty())

			var text strings.Builder
			for _, evt := range events[:len(events)-1] {
				Expect(evt.Type).To(Equal("token"))
				var tok struct {
					Token string `json:"token"`
				}
				Expect(evt.Decode(&tok)).To(Succeed())
				text.WriteString(tok.Token)
			}
			Expect(text.String()).To(Equal("one two three"))
			Expect(events[len(events)-1].Type).To(Equal("done"))
		})

		It("should report backend failures as provider errors", func() {
			created, err := sessions.Create(map[string]any{"model": "not-installed"})
			Expect(err).NotTo(HaveOccurred())
			_, _, err = client.Lifecycle(ctx, created.SessionID, "start")
			Expect(err).NotTo(HaveOccurred())

			_, resp, err := client.Infer(ctx, created.SessionID, "hi")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			Expect(resp.ErrorCode()).To(Equal("PROVIDER_ERROR"))
		})
	})

	Describe("Global event stream", func() {
		It("should relay events of the requested session only", func() {
			other, err := sessions.Create(nil)
			Expect(err).NotTo(HaveOccurred())
			created, err := sessions.Create(nil)
			Expect(err).NotTo(HaveOccurred())
			id := created.SessionID

			sse = testServer.SSEClient()
			Expect(sse.Connect(ctx, "/event?sessionID="+id)).To(Succeed())
			_, err = sse.WaitForEvent("server.connected", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			_, _, err = client.Lifecycle(ctx, other.SessionID, "end")
			Expect(err).NotTo(HaveOccurred())
			_, _, err = client.Lifecycle(ctx, id, "end")
			Expect(err).NotTo(HaveOccurred())

			ended, err := sse.WaitForEvent("session.ended", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			var data testutil.TransitionData
			Expect(ended.Decode(&data)).To(Succeed())
			Expect(data.SessionID).To(Equal(id))
		})
	})
})
