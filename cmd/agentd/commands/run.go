package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashosive/agent-runtime/internal/event"
	"github.com/ashosive/agent-runtime/internal/logging"
	"github.com/ashosive/agent-runtime/internal/session"
)

const (
	runDefaultSystem  = "You are an AI assistant running inside an agent runtime."
	runDefaultModel   = "llama3.2-vision:latest"
	runDefaultMessage = "what is ai agent?"
)

var (
	runModel     string
	runSystem    string
	runMaxTokens int
	runStream    bool
	runFollow    bool
	runWait      time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run [message...]",
	Short: "Run a single session against the configured backend",
	Long: `Create a session, start it, send one message and print the reply.

The session's background pipeline keeps running for --wait before the
session is ended.

Examples:
  agentd run
  agentd run --model llama3.2:latest "Explain goroutines"
  agentd run --stream --follow "Say hello"`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model to use (default from config)")
	runCmd.Flags().StringVar(&runSystem, "system", runDefaultSystem, "System prompt")
	runCmd.Flags().IntVar(&runMaxTokens, "max-tokens", 512, "Session token limit")
	runCmd.Flags().BoolVar(&runStream, "stream", false, "Stream the reply token by token")
	runCmd.Flags().BoolVar(&runFollow, "follow", false, "Print tokens emitted by the session pipeline")
	runCmd.Flags().DurationVar(&runWait, "wait", 3*time.Second, "How long to keep the session alive after the reply")
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	maxTokens, err := tokenLimit(runMaxTokens)
	if err != nil {
		return err
	}

	message := strings.Join(args, " ")
	if message == "" {
		message = runDefaultMessage
	}

	model := runModel
	if model == "" {
		model = appConfig.DefaultModel
	}
	if model == "" {
		model = runDefaultModel
	}

	backend, err := newBackend(ctx, appConfig)
	if err != nil {
		return err
	}
	mgr := newManager(appConfig, backend)
	defer mgr.Shutdown(context.Background())

	system := runSystem
	_, receipt, err := mgr.CreateSessionWithModel(session.CreateRequest{
		SystemPrompt: &system,
		MaxTokens:    &maxTokens,
	}, model)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	id := receipt.SessionID

	if runFollow {
		unsub := mgr.Bus().Subscribe(event.SessionToken, func(e event.Event) {
			data, ok := e.Data.(event.SessionTokenData)
			if ok && data.SessionID == id {
				fmt.Fprint(os.Stderr, data.Token)
			}
		})
		defer unsub()
	}

	if _, err := mgr.StartSession(id); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	fmt.Printf("Session %s\n", id)
	fmt.Printf("Model: %s\n", model)
	fmt.Printf("Message: %s\n\n", truncate(message, 100))

	if runStream {
		stream, err := mgr.Engine().InferStreamWithInput(ctx, id, message)
		if err != nil {
			return fmt.Errorf("inference failed: %w", err)
		}
		defer stream.Close()
		for {
			tok, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("stream failed: %w", err)
			}
			fmt.Print(tok)
		}
		fmt.Println()
	} else {
		reply, err := mgr.Engine().InferOnceWithInput(ctx, id, message)
		if err != nil {
			return fmt.Errorf("inference failed: %w", err)
		}
		fmt.Println(reply)
	}

	if runWait > 0 {
		select {
		case <-time.After(runWait):
		case <-ctx.Done():
		}
	}

	if _, err := mgr.EndSession(id); err != nil {
		logging.Warn().Err(err).Str("sessionID", id).Msg("session not ended")
	}
	return nil
}

// tokenLimit validates the --max-tokens flag.
func tokenLimit(n int) (uint32, error) {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return 0, fmt.Errorf("--max-tokens must be between 0 and %d, got %d", uint32(math.MaxUint32), n)
	}
	return uint32(n), nil
}

// truncate shortens s to at most max runes, marking the cut with "...".
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
