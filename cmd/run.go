// cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/madanlalit/heimdall/internal/agent"
	"github.com/madanlalit/heimdall/internal/browser/dom"
	"github.com/madanlalit/heimdall/internal/browser/element"
	"github.com/madanlalit/heimdall/internal/browser/session"
	"github.com/madanlalit/heimdall/internal/browser/watchdog"
	"github.com/madanlalit/heimdall/internal/config"
	"github.com/madanlalit/heimdall/internal/events"
	"github.com/madanlalit/heimdall/internal/llmclient"
	"github.com/madanlalit/heimdall/internal/observability"
	"github.com/madanlalit/heimdall/internal/tools"
)

const shutdownTimeout = 10 * time.Second

// Function variables so tests can run the command without a browser.
var (
	runTask      = runAgentTask
	newLLMClient = llmclient.NewClient
)

func newRunCmd(a *app) *cobra.Command {
	var (
		startURL string
		asJSON   bool
	)

	runCmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Runs a natural language task in the browser",
		Long: `Runs a natural language task in the browser. The LLM sees the page's
interactive elements, picks actions, and the agent executes them until the
task is done or a limit is reached.`,
		Example: `  heimdall run "search for chromedp and open the first result" --url https://duckduckgo.com
  HEIMDALL_LLM_PROVIDER=anthropic heimdall run --headless=false "find the pricing page"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			task := strings.Join(args, " ")

			res, err := runTask(ctx, a.cfg, taskRequest{
				Task:     task,
				StartURL: startURL,
				In:       cmd.InOrStdin(),
				Out:      cmd.OutOrStdout(),
			}, logger)
			if res != nil {
				if perr := printResult(cmd.OutOrStdout(), res, asJSON); perr != nil {
					logger.Warn("Failed to print result.", zap.Error(perr))
				}
			}
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("task did not complete: %s", failureReason(res))
			}
			return nil
		},
	}

	runCmd.Flags().StringVarP(&startURL, "url", "u", "", "URL to open before the first step")
	runCmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	runCmd.Flags().StringP("provider", "p", "", "LLM provider (overrides config/env)")
	runCmd.Flags().StringP("model", "m", "", "LLM model (overrides config/env)")
	runCmd.Flags().String("endpoint", "", "LLM API base URL (overrides config/env)")
	runCmd.Flags().Int("max-steps", 0, "Maximum agent steps (overrides config/env)")
	runCmd.Flags().Bool("headless", true, "Run the browser headless (overrides config/env)")
	runCmd.Flags().String("cdp-url", "", "Attach to a running browser's DevTools endpoint instead of launching one")

	return runCmd
}

// taskRequest is one invocation of the run command.
type taskRequest struct {
	Task     string
	StartURL string
	// In and Out back the ask_human prompt.
	In  io.Reader
	Out io.Writer
}

// runAgentTask wires the browser, the DOM and element layers, the action
// registry and the LLM client, then runs the agent.
func runAgentTask(ctx context.Context, cfg *config.Config, req taskRequest, logger *zap.Logger) (*agent.Result, error) {
	// Create the client first so a missing API key fails before Chrome launches.
	client, err := newLLMClient(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	bus := events.NewBus(logger)
	defer bus.Shutdown()

	sess := session.NewSession(ctx, cfg, logger, bus)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			logger.Warn("Error while closing browser session.", zap.Error(err))
		}
	}()
	if err := sess.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	netWatch := watchdog.NewNetwork(ctx, logger, bus)
	netWatch.Start(sess)
	defer netWatch.Stop()

	pageWatch := watchdog.NewPage(ctx, sess, logger, bus)
	pageWatch.Start()
	defer pageWatch.Stop()

	exec := session.NewExecutor(sess, logger)
	domService := dom.NewService(exec, logger)
	engine := element.NewEngine(exec, logger, cfg.Browser.Interaction, bus)

	registry := tools.NewRegistry(logger, bus, cfg.Agent.ActionsPerSecond)
	if err := tools.RegisterDefaultActions(registry); err != nil {
		return nil, fmt.Errorf("failed to register actions: %w", err)
	}
	registry.SetEnv(&tools.Env{
		Browser:        sess,
		Elements:       engine,
		AllowedDomains: cfg.Browser.AllowedDomains,
		Prompter:       tools.NewConsolePrompter(req.In, req.Out),
		Retry:          tools.RetryPolicyFromConfig(cfg.Agent.Retry),
	})

	if req.StartURL != "" {
		if !tools.IsURLAllowed(req.StartURL, cfg.Browser.AllowedDomains) {
			return nil, fmt.Errorf("start URL %s is not in browser.allowed_domains", req.StartURL)
		}
		if err := sess.Navigate(ctx, req.StartURL); err != nil {
			return nil, fmt.Errorf("failed to open start URL: %w", err)
		}
	}

	a := agent.New(cfg.Agent, client, registry, domService, bus, logger,
		agent.WithStabilizer(netWatch, cfg.Network.NetworkIdle, cfg.Network.StabilityTimeout),
	)
	res, err := a.Run(ctx, req.Task)

	if failed := netWatch.FailedRequests(); len(failed) > 0 {
		logger.Debug("Requests failed during the run.", zap.Int("count", len(failed)))
	}
	for _, jsErr := range pageWatch.JSErrors() {
		logger.Debug("Page script error.", zap.String("message", jsErr.Message), zap.String("url", jsErr.URL))
	}
	return res, err
}

func printResult(w io.Writer, res *agent.Result, asJSON bool) error {
	if asJSON {
		b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}

	status := "succeeded"
	if !res.Success {
		status = "failed: " + failureReason(res)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", res.Task)
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "Steps: %d (failed actions: %d)\n", res.Steps, res.TotalFailures)
	if res.FinalMessage != "" {
		fmt.Fprintf(&b, "Result: %s\n", res.FinalMessage)
	}
	if res.Usage.TotalTokens > 0 {
		fmt.Fprintf(&b, "Tokens: %d\n", res.Usage.TotalTokens)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func failureReason(res *agent.Result) string {
	switch {
	case res.Error != "":
		return res.Error
	case res.Done:
		return "agent reported the task as unsuccessful"
	default:
		return fmt.Sprintf("step limit of %d reached", res.Steps)
	}
}
