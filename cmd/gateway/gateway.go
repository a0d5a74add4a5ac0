// cmd/gateway/gateway.go
package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/vsd-gateway/internal/api"
	"github.com/tamzrod/vsd-gateway/internal/config"
	"github.com/tamzrod/vsd-gateway/internal/events"
	"github.com/tamzrod/vsd-gateway/internal/metrics"
	"github.com/tamzrod/vsd-gateway/internal/mqtt"
	"github.com/tamzrod/vsd-gateway/internal/plc"
	"github.com/tamzrod/vsd-gateway/internal/poller"
	"github.com/tamzrod/vsd-gateway/internal/regmap"
	"github.com/tamzrod/vsd-gateway/internal/server"
	"github.com/tamzrod/vsd-gateway/internal/storage"
	"github.com/tamzrod/vsd-gateway/internal/transport"
)

// gateway is every component built and subscribed, nothing running yet.
type gateway struct {
	bus    *events.Bus
	poller *poller.Poller
	buffer *storage.Buffer // nil unless storage is enabled

	runners []func(ctx context.Context) error
	closers []func()
}

// build constructs all components and attaches every bus consumer.
// No goroutine is started; on error everything opened so far is closed.
func build(cfg *config.Config, reg prometheus.Registerer, gatherer prometheus.Gatherer, clk clock.Clock, logger zerolog.Logger) (_ *gateway, err error) {
	gw := &gateway{bus: events.NewBus(logger)}
	defer func() {
		if err != nil {
			gw.close()
		}
	}()

	m := metrics.New(reg)

	// --------------------
	// Register map (Modbus TCP image)
	// --------------------

	plan, err := regmap.BuildPlan(cfg)
	if err != nil {
		return nil, fmt.Errorf("register map plan failed: %w", err)
	}
	image := regmap.New(plan.Size)
	mapWriter := regmap.NewWriter(image, plan, logger)
	if err := mapWriter.Init(); err != nil {
		return nil, fmt.Errorf("register map init failed: %w", err)
	}

	tcp, err := server.New(server.Config{
		URL:        cfg.TCPServer.Listen,
		Timeout:    ms(cfg.TCPServer.TimeoutMs),
		MaxClients: cfg.TCPServer.MaxClients,
	}, server.NewHandler(image, cfg.TCPServer.UnitID, logger), logger)
	if err != nil {
		return nil, err
	}

	// --------------------
	// RTU bus + polling engine
	// --------------------

	link := transport.NewRTULink(transport.SerialConfig{
		Port:     cfg.Serial.Port,
		BaudRate: cfg.Serial.BaudRate,
		DataBits: cfg.Serial.DataBits,
		Parity:   strings.ToUpper(cfg.Serial.Parity),
		StopBits: cfg.Serial.StopBits,
		Timeout:  ms(cfg.Serial.TimeoutMs),
	})
	bus485 := transport.NewManager(link, transport.ManagerConfig{
		Attempts:   cfg.Serial.ConnectAttempts,
		RetryDelay: ms(cfg.Serial.RetryDelayMs),
	}, clk, logger)
	gw.closers = append(gw.closers, bus485.Close)

	gw.poller, err = poller.Build(cfg, bus485, gw.bus, logger,
		poller.WithClock(clk),
		poller.WithRecorder(m),
		poller.WithMapWriter(mapWriter),
	)
	if err != nil {
		return nil, fmt.Errorf("poller build failed: %w", err)
	}

	// --------------------
	// Optional outputs
	// --------------------

	devices := make([]string, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		devices = append(devices, d.Name)
	}

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(mqtt.ClientConfig{
			Broker:    cfg.MQTT.Broker,
			ClientID:  cfg.MQTT.ClientID,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			Reconnect: ms(cfg.MQTT.ReconnectMs),
			Timeout:   ms(cfg.MQTT.ConnectTimeoutMs),
		}, logger)
		if err != nil {
			return nil, err
		}
		gw.closers = append(gw.closers, func() { client.Disconnect(250) })

		bridge := mqtt.New(mqtt.Config{
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
			Interval: ms(cfg.MQTT.PublishIntervalMs),
			Devices:  devices,
		}, client, logger, mqtt.WithClock(clk), mqtt.WithRecorder(m))
		bridge.Subscribe(gw.bus)
		gw.runners = append(gw.runners, bridge.Run)
	}

	var reports api.Reporter
	if cfg.Storage.Enabled {
		store, err := storage.Open(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		gw.closers = append(gw.closers, func() { _ = store.Close() })
		reports = store

		gw.buffer = storage.NewBuffer("")
		gw.buffer.Subscribe(gw.bus)

		rec := storage.NewRecorder(storage.RecorderConfig{
			Schedule: cfg.Storage.Schedule,
			Site:     cfg.Storage.Site,
			Location: cfg.Storage.Location,
		}, gw.buffer, store, clk, logger)
		gw.runners = append(gw.runners, rec.Run)
	}

	if cfg.HTTP.Enabled {
		h := api.MakeHandler(svcName, gw.poller, reports, gatherer, logger)
		gw.runners = append(gw.runners, func(ctx context.Context) error {
			return api.Serve(ctx, cfg.HTTP.Listen, h, api.DefaultStopWait, logger)
		})
	}

	if cfg.PLC.Enabled {
		reader := plc.NewReader(plc.Config{
			UnitID:    cfg.PLC.UnitID,
			Interval:  ms(cfg.PLC.IntervalMs),
			Reconnect: ms(cfg.PLC.ReconnectMs),
		}, func() (plc.Source, error) {
			return plc.Dial(plc.ClientConfig{Endpoint: cfg.PLC.Endpoint, Timeout: ms(cfg.PLC.TimeoutMs)})
		}, gw.bus, logger, plc.WithClock(clk), plc.WithRecorder(m))
		gw.runners = append(gw.runners, reader.Run)
	}

	// producers last, after every consumer is subscribed
	gw.runners = append(gw.runners,
		tcp.Run,
		gw.poller.Run,
		statusTicker(mapWriter, clk, logger),
	)

	return gw, nil
}

// statusTicker advances the seconds-in-error counters once a second.
func statusTicker(w *regmap.Writer, clk clock.Clock, logger zerolog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		t := clk.Ticker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				if err := w.Tick(); err != nil {
					logger.Warn().Err(err).Msg("status tick failed")
				}
			}
		}
	}
}

// run starts every component and blocks until all have stopped.
func (gw *gateway) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, r := range gw.runners {
		r := r
		g.Go(func() error { return r(ctx) })
	}

	err := g.Wait()
	gw.close()
	return err
}

// close releases resources in reverse order of acquisition.
func (gw *gateway) close() {
	for i := len(gw.closers) - 1; i >= 0; i-- {
		gw.closers[i]()
	}
	gw.closers = nil
}
