package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"impressionism/internal/config"
	"impressionism/internal/hooks"
	"impressionism/internal/logging"
	"impressionism/internal/policy"
	"impressionism/internal/policy/ruleapi"
)

var (
	selectSession        string
	selectWorkspace      string
	selectDeactivateOnly bool
	selectRuleset        string
)

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Run the active ruleset for the current context (hook entry point)",
	RunE:  runSelect,
}

func init() {
	selectCmd.Flags().StringVar(&selectSession, "session", "", "session id")
	selectCmd.Flags().StringVar(&selectWorkspace, "workspace", "", "workspace path")
	selectCmd.Flags().BoolVar(&selectDeactivateOnly, "deactivate-only", false, "skip activation, evaluate deactivation only")
	selectCmd.Flags().StringVar(&selectRuleset, "ruleset", "", "override the configured active ruleset")
	selectCmd.MarkFlagRequired("session")
	selectCmd.MarkFlagRequired("workspace")
}

func runSelect(cmd *cobra.Command, args []string) (err error) {
	// Correlates this invocation's diagnostics when hooks overlap.
	log := logging.Get(logging.CategoryHook).With("req", uuid.NewString()[:8])

	// Any pipeline error still leaves the host a well-formed empty object.
	defer func() {
		if err != nil {
			hooks.WriteEmpty(cmd.OutOrStdout())
		}
	}()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}

	payload, err := hooks.ReadPayload(cmd.InOrStdin())
	if err != nil {
		log.Warnf("%v", err)
		payload = &hooks.Payload{}
	}

	eventName := payload.HookEventName
	if eventName == "" {
		eventName = "SessionStart"
	}
	event, err := hooks.NormalizeEvent(eventName)
	if err != nil {
		log.Warnf("%v; defaulting to %s", err, ruleapi.EventSessionStart)
		event = ruleapi.EventSessionStart
	}

	ectx := payload.EvalContext(selectSession, selectWorkspace, event)

	rulesDir, err := config.RulesDir()
	if err != nil {
		return &configError{err: err}
	}
	runner := policy.NewRunner(st, engine, cfg, rulesDir)
	runner.RulesetOverride = selectRuleset

	ctx := cmd.Context()
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	hint, err := runner.Run(ctx, ectx, selectDeactivateOnly)
	if err != nil {
		// Policy failures are isolated: the host still gets a response
		// and the active set is untouched.
		var policyErr *policy.PolicyError
		var sandboxErr *policy.SandboxError
		if errors.As(err, &policyErr) || errors.As(err, &sandboxErr) {
			fmt.Fprintf(os.Stderr, "impressionism: %v\n", err)
			hooks.WriteEmpty(cmd.OutOrStdout())
			return nil
		}
		return err
	}

	if hint == "" {
		return hooks.WriteSelectResponse(cmd.OutOrStdout(), eventName, "")
	}
	return hooks.WriteSelectResponse(cmd.OutOrStdout(), eventName, hint)
}
