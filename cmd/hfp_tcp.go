package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quan-to/slog"
	"github.com/racerxdl/hfp_tcp/config"
	"github.com/racerxdl/hfp_tcp/device"
	"github.com/racerxdl/hfp_tcp/device/lime"
	"github.com/racerxdl/hfp_tcp/rtltcp"
	"github.com/spf13/pflag"
)

var (
	listenAddress = pflag.StringP("address", "a", "", "listen address")
	listenPort    = pflag.IntP("port", "p", 1234, "listen port")
	sampleBits    = pflag.IntP("bits", "b", 8, "sample bits sent to the client (8 or 16)")
	configFile    = pflag.StringP("config", "c", "", "YAML configuration file")
	deviceKind    = pflag.String("device", config.DeviceLime, "sample source (lime or synthetic)")
	deviceIndex   = pflag.IntP("device-index", "d", 0, "device index")
	channel       = pflag.Int("channel", 0, "receive channel")
	antennaName   = pflag.String("antenna", "LNAL", "antenna name")
	lpf           = pflag.Int("lpf", 2500000, "analog low pass filter in Hz")
	oversampling  = pflag.Int("oversampling", 0, "oversampling (0 for the maximum possible)")
	metricsAddr   = pflag.String("metrics", "", "serve prometheus /metrics on this address")
	verbose       = pflag.BoolP("verbose", "v", false, "verbose mode")
)

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return cfg, err
		}
	}

	// flags given explicitly win over the file
	pflag.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "address":
			cfg.ListenAddress = *listenAddress
		case "port":
			cfg.Port = *listenPort
		case "bits":
			cfg.SampleBits = *sampleBits
		case "device":
			cfg.Device = *deviceKind
		case "device-index":
			cfg.DeviceIndex = *deviceIndex
		case "channel":
			cfg.Channel = *channel
		case "antenna":
			cfg.Antenna = *antennaName
		case "lpf":
			cfg.LPF = *lpf
		case "oversampling":
			cfg.Oversampling = *oversampling
		case "metrics":
			cfg.MetricsAddress = *metricsAddr
		case "verbose":
			cfg.Verbose = *verbose
		}
	})

	return cfg, cfg.Validate()
}

func openDevice(cfg config.Config) (device.Device, func(), error) {
	if cfg.Device == config.DeviceSynthetic {
		return device.MakeSynthetic(nil), func() {}, nil
	}
	dev, err := lime.Open(lime.Options{
		Index:        cfg.DeviceIndex,
		Channel:      cfg.Channel,
		Antenna:      cfg.Antenna,
		LPF:          float64(cfg.LPF),
		Oversampling: cfg.Oversampling,
	})
	if err != nil {
		return nil, nil, err
	}
	return dev, dev.Close, nil
}

func serveMetrics(address string, log slog.Instance) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("Serving metrics on %s", address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Metrics server stopped: %s", err)
	}
}

func main() {
	pflag.Parse()
	log := slog.Scope("HFPTCP")

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		pflag.Usage()
		os.Exit(1)
	}

	slog.SetDebug(cfg.Verbose)
	slog.SetShowLines(false)

	dev, closeDevice, err := openDevice(cfg)
	if err != nil {
		log.Error("Error opening device: %s", err)
		os.Exit(1)
	}
	defer closeDevice()

	if err := dev.SetSampleRate(cfg.InitialSampleRate); err != nil {
		log.Error("Error setting sample rate: %s", err)
	}
	if err := dev.SetFrequency(cfg.InitialFrequency); err != nil {
		log.Error("Error setting frequency: %s", err)
	}

	server := rtltcp.MakeRTLTCPServer(cfg.Address(), dev, rtltcp.Options{
		SampleBits:  cfg.SampleBits,
		RingSize:    cfg.RingSize,
		ReadTimeout: cfg.ReadTimeout,
		Settle:      cfg.Settle,
		RateSettle:  cfg.RateSettle,
	})
	server.SetInitialState(cfg.InitialSampleRate, cfg.InitialFrequency)
	server.SetOnConnect(func(sessionId string, address string) {
		log.Debug("New connection from %s [%s]", address, sessionId)
	})

	if cfg.MetricsAddress != "" {
		go serveMetrics(cfg.MetricsAddress, log)
	}

	if err := server.Start(); err != nil {
		log.Error("Error starting server: %s", err)
		os.Exit(1)
	}
	log.Info("Serving %s with %d-bit samples", server.Header(), cfg.SampleBits)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- server.Wait()
	}()

	exitCode := 0
	select {
	case sig := <-sigs:
		log.Info("Received %s, shutting down", sig)
		server.Stop()
	case err := <-waitErr:
		log.Error("Server stopped: %s", err)
		exitCode = 1
	}

	if dev.IsStreaming() {
		_ = dev.Stop()
	}
	log.Info("Closed!")
	if exitCode != 0 {
		closeDevice()
		os.Exit(exitCode)
	}
}
