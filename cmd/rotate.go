package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mpelletier/caselaw-crawler/internal/config"
	"github.com/mpelletier/caselaw-crawler/internal/logging"
	"github.com/mpelletier/caselaw-crawler/internal/rotation"
)

// newRotateCmd creates the 'rotate' subcommand, a one-shot self test of the
// Elastic IP rotation path.
func newRotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Rotates the outbound Elastic IP once and verifies the change",
		RunE:  runRotateCommand,
	}
}

func runRotateCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Rotation.Enabled {
		return fmt.Errorf("rotation is disabled; set rotation.enabled to run the self test")
	}

	logger := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
	})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rotator, err := rotation.NewElasticIP(ctx, rotation.Config{
		InstanceID:         cfg.Rotation.InstanceID,
		NetworkInterfaceID: cfg.Rotation.NetworkInterfaceID,
		Region:             cfg.Rotation.Region,
		SettleDelay:        cfg.Rotation.SettleDelay,
		LookupURL:          cfg.Rotation.LookupURL,
	}, logger)
	if err != nil {
		return fmt.Errorf("init rotator: %w", err)
	}

	before, err := rotator.PublicIP(ctx)
	if err != nil {
		return fmt.Errorf("resolve current address: %w", err)
	}
	logger.Info("Current public address", zap.String("address", before))

	allocated, err := rotator.Rotate(ctx)
	if err != nil {
		return fmt.Errorf("rotate: %w", err)
	}
	logger.Info("Rotation complete", zap.String("allocated", allocated))

	after, err := rotator.PublicIP(ctx)
	if err != nil {
		return fmt.Errorf("resolve new address: %w", err)
	}

	if after == before {
		logger.Error("Public address did not change",
			zap.String("before", before),
			zap.String("after", after),
		)
		return fmt.Errorf("rotation did not change the public address (%s)", before)
	}

	logger.Info("Public address changed",
		zap.String("before", before),
		zap.String("after", after),
	)
	return nil
}
