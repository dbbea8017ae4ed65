package main

import (
	"github.com/spf13/cobra"

	"impressionism/internal/hooks"
	"impressionism/internal/logging"
)

var (
	logSession   string
	logWorkspace string
	logEvent     string
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Append a conversation or tool event to the session log (hook entry point)",
	RunE:  runLog,
}

func init() {
	logCmd.Flags().StringVar(&logSession, "session", "", "session id")
	logCmd.Flags().StringVar(&logWorkspace, "workspace", "", "workspace path")
	logCmd.Flags().StringVar(&logEvent, "event", "", "hook event kind")
	logCmd.MarkFlagRequired("session")
	logCmd.MarkFlagRequired("workspace")
	logCmd.MarkFlagRequired("event")
}

func runLog(cmd *cobra.Command, args []string) error {
	log := logging.Get(logging.CategorySession)

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
		return err
	}
	payload.SessionID = logSession

	event, err := hooks.NormalizeEvent(logEvent)
	if err != nil {
		return err
	}

	if _, err := st.GetOrCreateSession(logSession, logWorkspace); err != nil {
		return err
	}

	msg, ok, err := hooks.BuildLogMessage(cmd.Context(), payload, event, cfg, engine, st)
	if err != nil {
		return err
	}
	if !ok {
		log.Debugf("event filtered, nothing logged")
		return nil
	}

	logged, err := st.AppendLog(msg)
	if err != nil {
		return err
	}
	log.Debugf("logged session=%s seq=%d role=%s", logged.SessionID, logged.Sequence, logged.Role)
	return nil
}
