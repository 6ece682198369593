package e2e_test

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ashosive/agent-runtime/citest/testutil"
)

var _ = Describe("Session Workflows", func() {
	var sessions *testutil.SessionManager

	BeforeEach(func() {
		sessions = testutil.NewSessionManager(client)
	})

	AfterEach(func() {
		sessions.Cleanup()
	})

	Describe("Basic Session Lifecycle", func() {
		It("should create a pending session with defaults", func() {
			created, err := sessions.Create(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(created.SessionID).NotTo(BeEmpty())
			Expect(created.Session.State).To(Equal("Pending"))
			Expect(created.Session.ContextSeed.SystemPrompt).To(Equal("You are an AI assistant."))
			Expect(created.Session.Limits.MaxTokens).To(BeEquivalentTo(2048))
		})

		It("should retrieve and list sessions", func() {
			created, err := sessions.Create(map[string]any{"max_tokens": 64})
			Expect(err).NotTo(HaveOccurred())

			retrieved, err := client.GetSession(ctx, created.SessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved.ID).To(Equal(created.SessionID))
			Expect(retrieved.Limits.MaxTokens).To(BeEquivalentTo(64))

			list, err := client.ListSessions(ctx)
			Expect(err).NotTo(HaveOccurred())
			ids := make([]string, 0, len(list))
			for _, s := range list {
				ids = append(ids, s.ID)
			}
			Expect(ids).To(ContainElement(created.SessionID))
		})

		It("should walk through every state", func() {
			created, err := sessions.Create(nil)
			Expect(err).NotTo(HaveOccurred())
			id := created.SessionID

			t, _, err := client.Lifecycle(ctx, id, "start")
			Expect(err).NotTo(HaveOccurred())
			Expect(t.PrevState).To(Equal("Pending"))
			Expect(t.NewState).To(Equal("Active"))
			Expect(t.WasNoop).To(BeFalse())

			t, _, err = client.Lifecycle(ctx, id, "start")
			Expect(err).NotTo(HaveOccurred())
			Expect(t.WasNoop).To(BeTrue())

			t, _, err = client.Lifecycle(ctx, id, "pause")
			Expect(err).NotTo(HaveOccurred())
			Expect(t.NewState).To(Equal("Paused"))

			t, _, err = client.Lifecycle(ctx, id, "suspend")
			Expect(err).NotTo(HaveOccurred())
			Expect(t.NewState).To(Equal("Suspended"))

			t, _, err = client.Lifecycle(ctx, id, "start")
			Expect(err).NotTo(HaveOccurred())
			Expect(t.PrevState).To(Equal("Suspended"))
			Expect(t.WasNoop).To(BeFalse())

			t, _, err = client.Lifecycle(ctx, id, "end")
			Expect(err).NotTo(HaveOccurred())
			Expect(t.NewState).To(Equal("Ended"))

			s, err := client.GetSession(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.State).To(Equal("Ended"))
			Expect(s.StartedAt).NotTo(BeNil())
		})

		It("should refuse to restart an ended session", func() {
			created, err := sessions.Create(nil)
			Expect(err).NotTo(HaveOccurred())

			_, _, err = client.Lifecycle(ctx, created.SessionID, "end")
			Expect(err).NotTo(HaveOccurred())

			_, resp, err := client.Lifecycle(ctx, created.SessionID, "start")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			Expect(resp.ErrorCode()).To(Equal("INVALID_STATE"))

			_, resp, err = client.Lifecycle(ctx, created.SessionID, "end")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("should refuse to pause a pending session", func() {
			created, err := sessions.Create(nil)
			Expect(err).NotTo(HaveOccurred())

			_, resp, err := client.Lifecycle(ctx, created.SessionID, "pause")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("should delete session", func() {
			created, err := client.CreateSession(ctx, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(client.DeleteSession(ctx, created.SessionID)).To(Succeed())

			resp, err := client.Get(ctx, "/session/"+created.SessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(resp.ErrorCode()).To(Equal("NOT_FOUND"))
		})
	})

	Describe("Models", func() {
		It("should assign a known model after verification", func() {
			created, err := sessions.Create(nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := client.Put(ctx, "/session/"+created.SessionID+"/model",
				map[string]any{"model": testModel, "verify": true})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			s, err := client.GetSession(ctx, created.SessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Model).NotTo(BeNil())
			Expect(*s.Model).To(Equal(testModel))
		})

		It("should reject an unknown model with a suggestion", func() {
			created, err := sessions.Create(nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := client.Put(ctx, "/session/"+created.SessionID+"/model",
				map[string]any{"model": "llama3.2:lates", "verify": true})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

			var body testutil.ErrorBody
			Expect(resp.JSON(&body)).To(Succeed())
			Expect(body.Error.Code).To(Equal("UNKNOWN_MODEL"))
			Expect(body.Error.Details).To(HaveKeyWithValue("suggestion", testModel))
		})

		It("should list and pull models", func() {
			resp, err := client.Get(ctx, "/models")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.String()).To(ContainSubstring(testModel))

			resp, err = client.Post(ctx, "/models/pull", map[string]any{"name": "qwen2:0.5b"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(mockOllama.Models()).To(ContainElement("qwen2:0.5b"))
		})

		It("should report health", func() {
			resp, err := client.Get(ctx, "/health")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var health struct {
				Healthy bool `json:"healthy"`
			}
			Expect(resp.JSON(&health)).To(Succeed())
			Expect(health.Healthy).To(BeTrue())
		})
	})
})
