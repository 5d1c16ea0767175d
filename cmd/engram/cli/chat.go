package cli

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/engramlabs/engram/internal/chat"
	"github.com/engramlabs/engram/internal/engine"
	"github.com/engramlabs/engram/internal/metrics"
	"github.com/engramlabs/engram/internal/provider"
)

var (
	chatSession string
	chatPersona string
	metricsAddr string
)

// cliOrigin satisfies engine.Origin for the interactive loop.
type cliOrigin struct {
	sessionID string
	persona   string
}

func (o cliOrigin) GetSessionID() string      { return o.sessionID }
func (o cliOrigin) GetPersonaID() string      { return o.persona }
func (o cliOrigin) GetDefaultPersona() string { return "" }

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat loop with memory retrieval and summarization",
	Run: func(cmd *cobra.Command, args []string) {
		runChat()
	},
}

func runChat() {
	ctx := context.Background()
	a := buildApp(ctx)
	defer a.close()

	llm, err := provider.New(a.cfg.LLM)
	if err != nil {
		a.obs.Log().Fatal().Err(err).Msg("Failed to init chat provider")
	}

	sessionID := chatSession
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	origin := cliOrigin{sessionID: sessionID, persona: chatPersona}

	if metricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(metricsAddr, metrics.Handler()); err != nil {
				a.obs.Log().Warn().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	sched := engine.NewScheduler(a.engine)
	if err := sched.Start(); err != nil {
		a.obs.Log().Fatal().Err(err).Msg("Failed to start sweep scheduler")
	}
	defer sched.Stop()

	fmt.Printf("session %s (exit with ctrl-d or /quit)\n", sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			break
		}

		req := &chat.Request{Prompt: line}
		if err := a.engine.OnRequest(ctx, sessionID, req, origin); err != nil {
			a.obs.Log().Error().Err(err).Msg("retrieval failed")
		}

		resp, err := llm.Chat(ctx, req.Prompt, req.SystemPrompt, nil)
		if err != nil {
			fmt.Printf("chat failed: %v\n", err)
			continue
		}
		fmt.Println(resp.Content)

		a.engine.OnResponse(ctx, sessionID, resp.Content, origin)
	}

	a.engine.WaitPending()
}

func init() {
	RootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatSession, "session", "", "Session id (random when empty)")
	chatCmd.Flags().StringVar(&chatPersona, "persona", "", "Persona id for stored memories")
	chatCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
}
