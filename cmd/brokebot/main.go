// brokebot is a Telegram bot that verifies X (Twitter) engagement tasks.
// Admins announce tasks; registered users prove they replied with the
// campaign keyword and retweeted the post, and the bot settles reward
// claims at most once per user and task.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/qadeerTruesofts/TelegramBot-For-X/internal/browser"
	"github.com/qadeerTruesofts/TelegramBot-For-X/internal/config"
	"github.com/qadeerTruesofts/TelegramBot-For-X/internal/evidence"
	"github.com/qadeerTruesofts/TelegramBot-For-X/internal/store"
	"github.com/qadeerTruesofts/TelegramBot-For-X/internal/telegram"
	"github.com/qadeerTruesofts/TelegramBot-For-X/internal/verify"
)

var version = "dev"

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "brokebot",
	Short: "Telegram bot that verifies X engagement tasks and settles reward claims",
	Long: `brokebot announces engagement tasks to registered Telegram users and
verifies completion against X: the user must have replied to the task
post with the campaign keyword and retweeted it. Verified claims are
recorded at most once per user and task.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot: long-poll Telegram and serve verification requests",
	RunE:  runServe,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against X and persist the session cookies",
	Long: `Logs in to X with the configured credentials and saves the session
cookie bundle, so serve can start with a warm session. Run with
--headful to watch the login and solve challenges manually.`,
	RunE: runLogin,
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the tasks in the local database",
	RunE:  runTasks,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the brokebot version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("brokebot", version)
	},
}

var headful bool

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "brokebot.yaml", "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	loginCmd.Flags().BoolVar(&headful, "headful", false, "run the browser with a visible window")

	rootCmd.AddCommand(serveCmd, loginCmd, tasksCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func browserConfig(cfg *config.Config) (browser.Config, error) {
	nav, err := cfg.NavTimeout()
	if err != nil {
		return browser.Config{}, err
	}
	settle, err := cfg.PageSettle()
	if err != nil {
		return browser.Config{}, err
	}
	return browser.Config{
		Headless:   cfg.Browser.Headless,
		Bin:        cfg.Browser.Bin,
		NavTimeout: nav,
		PageSettle: settle,
		LoginUser:  cfg.X.LoginUser,
		LoginPass:  cfg.X.LoginPass,
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	bcfg, err := browserConfig(cfg)
	if err != nil {
		return err
	}
	mgr := browser.NewManager(bcfg, browser.NewCookieStore(cfg.X.CookieFile), logger)
	defer func() {
		if err := mgr.Shutdown(); err != nil {
			logger.Warn("browser shutdown", zap.Error(err))
		}
	}()

	provider := evidence.NewProvider(mgr, logger)
	orchestrator := verify.New(st, provider, mgr, cfg.X.Keyword, logger)

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("telegram auth: %w", err)
	}
	logger.Info("authorized on telegram",
		zap.String("bot", api.Self.UserName),
		zap.Int("admins", len(cfg.Telegram.Admins)))

	bot := telegram.New(api, st, orchestrator, cfg.IsAdmin, cfg.X.Keyword, logger)
	if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("shutting down")
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.X.LoginUser == "" || cfg.X.LoginPass == "" {
		return fmt.Errorf("x.login_user and x.login_pass are required (or set X_LOGIN_USER / X_LOGIN_PASS)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bcfg, err := browserConfig(cfg)
	if err != nil {
		return err
	}
	if headful {
		bcfg.Headless = false
	}

	cookies := browser.NewCookieStore(cfg.X.CookieFile)
	if err := cookies.Clear(); err != nil {
		return fmt.Errorf("clear stale cookies: %w", err)
	}

	mgr := browser.NewManager(bcfg, cookies, logger)
	defer func() {
		if err := mgr.Shutdown(); err != nil {
			logger.Warn("browser shutdown", zap.Error(err))
		}
	}()

	if err := mgr.Reauthenticate(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	fmt.Println("Login succeeded, session cookies saved to", cfg.X.CookieFile)
	return nil
}

func runTasks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	tasks, err := st.ListTasks()
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks.")
		return nil
	}
	for _, t := range tasks {
		claimants, err := st.ClaimantCount(t.ID)
		if err != nil {
			return err
		}
		fmt.Printf("#%d  reward=%g  claims=%d  %s\n", t.ID, t.Reward, claimants, t.PostURL)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
