package e2e_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ashosive/agent-runtime/citest/testutil"
	"github.com/ashosive/agent-runtime/internal/inference"
)

var _ = Describe("Inactivity reaper", Ordered, func() {
	var (
		reaperServer *testutil.TestServer
		reaperClient *testutil.TestClient
	)

	BeforeAll(func() {
		var err error
		reaperServer, err = testutil.StartTestServer(
			testutil.WithOllamaURL(mockOllama.URL()),
			testutil.WithDefaultModel(testModel),
			testutil.WithPipeline(inference.PipelineConfig{
				PollInterval:      20 * time.Millisecond,
				InactivityTimeout: 300 * time.Millisecond,
			}),
		)
		Expect(err).NotTo(HaveOccurred())
		reaperClient = reaperServer.Client()
	})

	AfterAll(func() {
		if reaperServer != nil {
			reaperServer.Stop()
		}
	})

	It("should end an idle session with reason inactivity", func() {
		created, err := reaperClient.CreateSession(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(created.Session.Model).NotTo(BeNil())
		id := created.SessionID

		sse := reaperServer.SSEClient()
		defer sse.Close()
		Expect(sse.Connect(ctx, "/session/"+id+"/stream")).To(Succeed())

		_, _, err = reaperClient.Lifecycle(ctx, id, "start")
		Expect(err).NotTo(HaveOccurred())

		ended, err := sse.WaitForEvent("session.ended", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())

		var data testutil.TransitionData
		Expect(ended.Decode(&data)).To(Succeed())
		Expect(data.Reason).To(Equal("inactivity"))
		Expect(data.PrevState).To(Equal("Active"))

		s, err := reaperClient.GetSession(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.State).To(Equal("Ended"))
	})

	It("should leave paused sessions alone", func() {
		created, err := reaperClient.CreateSession(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		id := created.SessionID

		_, _, err = reaperClient.Lifecycle(ctx, id, "start")
		Expect(err).NotTo(HaveOccurred())
		_, _, err = reaperClient.Lifecycle(ctx, id, "pause")
		Expect(err).NotTo(HaveOccurred())

		Consistently(func() string {
			s, err := reaperClient.GetSession(ctx, id)
			if err != nil {
				return err.Error()
			}
			return s.State
		}, 600*time.Millisecond, 50*time.Millisecond).Should(Equal("Paused"))
	})
})
