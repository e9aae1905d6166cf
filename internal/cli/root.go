package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/akolanti/CivicRAG/internal/app"
	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/middleware"
	"github.com/akolanti/CivicRAG/internal/rag"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
)

// command output shares stdout with the logger
const logLevelQuiet = slog.LevelError

var (
	userId        string
	role          string
	jurisdictions []string
	tuningFile    string
	verbose       bool
)

// service is set by the root pre-run, tests assign it directly.
var (
	service   rag.Service
	closeApp  func()
	cancelApp context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Operate a CivicRAG deployment from the shell",
	Long: `ragctl talks to the same stores and providers as the API server, configured from the
environment or a .env file. It acts as the principal given by --user, --role and --jurisdictions.`,
	SilenceUsage:       true,
	PersistentPreRunE:  connect,
	PersistentPostRunE: disconnect,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&userId, "user", "ragctl", "user id recorded on uploads")
	rootCmd.PersistentFlags().StringVar(&role, "role", string(commonModels.RoleAdmin), "admin, sub_admin or consumer")
	rootCmd.PersistentFlags().StringSliceVar(&jurisdictions, "jurisdictions", nil, "jurisdictions the principal is assigned to")
	rootCmd.PersistentFlags().StringVar(&tuningFile, "tuning", "", "YAML tuning file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show info logs")
}

// Execute runs the command tree, ctx is cancelled on interrupt by the caller.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func connect(cmd *cobra.Command, _ []string) error {
	if service != nil {
		return nil
	}
	level := config.LOG_LEVEL_PROD
	if !verbose {
		level = logLevelQuiet
	}
	logger_i.Init(true, level)

	settings := config.LoadSettings()
	if tuningFile != "" {
		settings.TuningFile = tuningFile
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	a, err := app.Build(ctx, settings)
	if err != nil {
		cancel()
		return fmt.Errorf("connect: %w", err)
	}
	service, closeApp, cancelApp = a.Service, a.Close, cancel
	return nil
}

func disconnect(_ *cobra.Command, _ []string) error {
	if closeApp != nil {
		closeApp()
		cancelApp()
		service, closeApp, cancelApp = nil, nil, nil
	}
	return nil
}

// principal goes through the same parsing as the gateway headers.
func principal() commonModels.Principal {
	h := http.Header{}
	h.Set(config.UserIdHeader, userId)
	h.Set(config.UserRoleHeader, role)
	h.Set(config.JurisdictionIdsHeader, strings.Join(jurisdictions, ","))
	return middleware.ParsePrincipal(h)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
