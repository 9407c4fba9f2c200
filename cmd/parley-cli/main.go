package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/parley/internal/client"
	"github.com/MarcoPoloResearchLab/parley/internal/logging"
	"github.com/MarcoPoloResearchLab/parley/internal/messages"
	"github.com/MarcoPoloResearchLab/parley/internal/realtime"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const reconnectInterval = 5 * time.Second

func main() {
	cliViper := viper.New()
	cliViper.SetEnvPrefix("PARLEY")
	cliViper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cliViper.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:          "parley-cli",
		Short:        "Terminal client for the Parley messaging backend",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("api-url", "http://localhost:5001", "Base URL of the API")
	rootCmd.PersistentFlags().String("email", "", "Account email")
	rootCmd.PersistentFlags().String("password", "", "Account password (or PARLEY_PASSWORD)")
	rootCmd.PersistentFlags().String("state-file", defaultStateFile(), "File holding unread counters and the selected peer")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "Log format (json, console)")
	for _, name := range []string{"api-url", "email", "password", "state-file", "log-level", "log-format"} {
		if err := cliViper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(newWatchCommand(cliViper), newSendCommand(cliViper))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func defaultStateFile() string {
	directory, err := os.UserConfigDir()
	if err != nil {
		return "parley-client.json"
	}
	return filepath.Join(directory, "parley", "client.json")
}

func newWatchCommand(cliViper *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Log in, connect and log presence and message events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewLogger(cliViper.GetString("log-level"), cliViper.GetString("log-format"))
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			session, err := newSession(cliViper, logger, func(event realtime.Event) {
				logEvent(logger, event)
			})
			if err != nil {
				return err
			}
			return watch(cmd.Context(), session, cliViper, logger)
		},
	}
}

func newSendCommand(cliViper *viper.Viper) *cobra.Command {
	var image string
	cmd := &cobra.Command{
		Use:   "send <peer-id> <text>",
		Short: "Send one message to a peer",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewLogger(cliViper.GetString("log-level"), cliViper.GetString("log-format"))
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx := cmd.Context()
			text := ""
			if len(args) == 2 {
				text = args[1]
			}
			imageDataURI := ""
			if image != "" {
				imageDataURI, err = readImageDataURI(image)
				if err != nil {
					return err
				}
			}
			message, err := sendOnce(ctx, cliViper, args[0], text, imageDataURI)
			if err != nil {
				return err
			}
			logger.Info("message sent", zap.String("message_id", message.ID), zap.String("receiver_id", message.ReceiverID))
			return nil
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "Path to an image attached to the message")
	return cmd
}

func newSession(cliViper *viper.Viper, logger *zap.Logger, onEvent func(realtime.Event)) (*client.Session, error) {
	api, err := client.NewAPIClient(cliViper.GetString("api-url"), 30*time.Second)
	if err != nil {
		return nil, err
	}
	store := client.NewFileStore(cliViper.GetString("state-file"))
	mirror, err := client.NewMirror(client.MirrorConfig{Unread: store, Selection: store, Logger: logger})
	if err != nil {
		return nil, err
	}
	return client.NewSession(client.SessionConfig{API: api, Mirror: mirror, OnEvent: onEvent, Logger: logger})
}

// sendOnce posts a message over HTTP only. Opening a socket here would replace the same user's
// running watch connection.
func sendOnce(ctx context.Context, cliViper *viper.Viper, peerID, text, imageDataURI string) (messages.Message, error) {
	email, password, err := credentials(cliViper)
	if err != nil {
		return messages.Message{}, err
	}
	api, err := client.NewAPIClient(cliViper.GetString("api-url"), 30*time.Second)
	if err != nil {
		return messages.Message{}, err
	}
	if _, err := api.Login(ctx, email, password); err != nil {
		return messages.Message{}, fmt.Errorf("login: %w", err)
	}
	return api.Send(ctx, peerID, text, imageDataURI)
}

func credentials(cliViper *viper.Viper) (string, string, error) {
	email := cliViper.GetString("email")
	password := cliViper.GetString("password")
	if email == "" || password == "" {
		return "", "", errors.New("--email and --password (or PARLEY_PASSWORD) are required")
	}
	return email, password, nil
}

func login(ctx context.Context, session *client.Session, cliViper *viper.Viper) (string, error) {
	email, password, err := credentials(cliViper)
	if err != nil {
		return "", err
	}
	user, err := session.Login(ctx, email, password)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	return user.ID, nil
}

func watch(ctx context.Context, session *client.Session, cliViper *viper.Viper, logger *zap.Logger) error {
	userID, err := login(ctx, session, cliViper)
	if err != nil {
		return err
	}
	logger.Info("connected", zap.String("user_id", userID))

	peers, err := session.LoadUsers(ctx)
	if err != nil {
		return err
	}
	mirror := session.Mirror()
	for _, peer := range peers {
		logger.Info("peer",
			zap.String("user_id", peer.ID),
			zap.String("full_name", peer.FullName),
			zap.Int("unread", mirror.UnreadCount(peer.ID)),
		)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		ticker := time.NewTicker(reconnectInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
			}
			socket := session.Socket()
			if socket == nil || socket.State() != client.StateDisconnected {
				continue
			}
			logger.Info("reconnecting")
			if err := socket.Connect(groupCtx); err != nil {
				logger.Warn("reconnect failed", zap.Error(err))
			}
		}
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := session.Logout(logoutCtx); err != nil && !client.IsUnauthorized(err) {
			return err
		}
		logger.Info("logged out")
		return nil
	})
	return group.Wait()
}

func logEvent(logger *zap.Logger, event realtime.Event) {
	switch typed := event.(type) {
	case realtime.PresenceEvent:
		logger.Info("presence", zap.Strings("online", typed.UserIDs))
	case realtime.MessageEvent:
		logger.Info("message",
			zap.String("message_id", typed.Message.ID),
			zap.String("sender_id", typed.Message.SenderID),
			zap.String("text", typed.Message.Text),
			zap.String("image", typed.Message.Image),
		)
	}
}
