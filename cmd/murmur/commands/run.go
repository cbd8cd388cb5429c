package commands

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/murmur/src/config"
	"github.com/mosaicnetworks/murmur/src/net"
	"github.com/mosaicnetworks/murmur/src/node"
	"github.com/mosaicnetworks/murmur/src/service"
	"github.com/mosaicnetworks/murmur/src/telemetry"
	"github.com/mosaicnetworks/murmur/src/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a murmur node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node on stdin and stdout",
		PreRunE: loadConfig,
		RunE:    runMurmur,
	}
	AddRunFlags(cmd, _config)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runMurmur(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	telemetry.SetBuildInfo(version.Version)

	trans := net.NewStreamTransport(
		os.Stdin,
		os.Stdout,
		_config.InboundBuffer,
		_config.OutboundBuffer,
		logger.WithField("component", "transport"),
	)
	trans.Listen()

	engine := node.NewNode(_config, trans)

	//Prepare sigCh to relay SIGINT and SIGTERM system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Info("Shutting down")
			engine.Shutdown()
		case <-engine.ShutdownCh():
		}
	}()

	if err := engine.Init(); err != nil {
		engine.Shutdown()
		if errors.Is(err, node.ErrShutdown) {
			return nil
		}
		logger.WithError(err).Error("Cannot initialize node")
		return err
	}

	if _config.ServiceAddr != "" {
		serviceServer := service.NewService(_config.ServiceAddr, engine, logger)
		go serviceServer.Serve()
		defer serviceServer.Shutdown()
	}

	err := engine.Run()

	engine.Shutdown()

	// a signal arrived before the loop started
	if errors.Is(err, node.ErrShutdown) {
		err = nil
	}

	if err != nil {
		logger.WithError(err).Error("Node stopped")
		return err
	}

	logger.Debug("Node stopped")

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command, conf *config.Config) {
	cmd.Flags().String("datadir", conf.DataDir, "Directory searched for murmur.toml (.yaml, .json)")
	cmd.Flags().String("log", conf.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", conf.LogFile, "Also write logs to this file")

	// Queues
	cmd.Flags().Int("inbound-buffer", conf.InboundBuffer, "Capacity of the inbound message queue")
	cmd.Flags().Int("outbound-buffer", conf.OutboundBuffer, "Capacity of the outbound message queue")

	// RPC
	cmd.Flags().Duration("rpc-timeout", conf.RPCTimeout, "Reply timeout of the first attempt of a request")
	cmd.Flags().Duration("rpc-max-timeout", conf.RPCMaxTimeout, "Cap on the doubled reply timeout (0 = none)")
	cmd.Flags().Int("rpc-max-attempts", conf.RPCMaxAttempts, "Attempts before a request is abandoned (0 = retry forever)")

	// Service
	cmd.Flags().StringP("service-listen", "s", conf.ServiceAddr, "Listen IP:Port for the HTTP service (empty = disabled)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	err := bindFlagsLoadViper(cmd, _config)
	if err != nil {
		return err
	}

	if err := _config.Validate(); err != nil {
		return err
	}

	_config.Logger().WithFields(logrus.Fields{
		"DataDir":        _config.DataDir,
		"LogLevel":       _config.LogLevel,
		"LogFile":        _config.LogFile,
		"InboundBuffer":  _config.InboundBuffer,
		"OutboundBuffer": _config.OutboundBuffer,
		"RPCTimeout":     _config.RPCTimeout,
		"RPCMaxTimeout":  _config.RPCMaxTimeout,
		"RPCMaxAttempts": _config.RPCMaxAttempts,
		"ServiceAddr":    _config.ServiceAddr,
	}).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper. Flags set on the command
// line take precedence over the config file, which takes precedence over
// the defaults.
func bindFlagsLoadViper(cmd *cobra.Command, conf *config.Config) error {
	v := viper.New()

	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := v.Unmarshal(conf); err != nil {
		return err
	}

	// look for config file in [datadir]/murmur.toml (.json, .yaml also work)
	v.SetConfigName(config.DefaultConfigName)
	v.AddConfigPath(conf.DataDir)

	// If a config file is found, read it in. Logging is deferred to after
	// the second unmarshal, which may change the log settings.
	found := false
	if err := v.ReadInConfig(); err == nil {
		found = true
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
		return err
	}

	// second unmarshal to read from config file
	if err := v.Unmarshal(conf); err != nil {
		return err
	}

	if found {
		conf.Logger().Debugf("Using config file: %s", v.ConfigFileUsed())
	} else {
		conf.Logger().Debugf("No config file found in: %s", conf.DataDir)
	}

	return nil
}
