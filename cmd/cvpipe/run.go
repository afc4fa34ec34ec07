package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/dudk/cvpipe"
	"github.com/dudk/cvpipe/config"
	"github.com/dudk/cvpipe/log"
	"github.com/dudk/cvpipe/metric"
	"github.com/dudk/cvpipe/sample"
	"github.com/dudk/cvpipe/sim"
)

func runCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stream from simulated devices to simulated modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(path, cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, s, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "YAML file with devices, modules and restriction")
	cmd.Flags().Duration("duration", 5*time.Second, "streaming time, zero streams until interrupted")
	cmd.Flags().String("listen", "", "address of Prometheus metrics endpoint")
	return cmd
}

// Report is printed when streaming is done.
type Report struct {
	Device  ConfigSettings `yaml:"device"`
	Sets    int64          `yaml:"sets"`
	Errors  int64          `yaml:"errors"`
	Modules []ModuleReport `yaml:"modules"`
}

// ModuleReport contains results of a single module.
type ModuleReport struct {
	Name      string         `yaml:"name"`
	UID       string         `yaml:"uid"`
	Config    ConfigSettings `yaml:"config"`
	Processed int            `yaml:"processed"`
	Gaps      int            `yaml:"gaps"`
}

// counter is a pipeline callback that counts sets and errors.
type counter struct {
	sets   atomic.Int64
	errors atomic.Int64
	log    logrus.FieldLogger
}

func (c *counter) OnSampleSet(*sample.Set) {
	c.sets.Add(1)
}

func (c *counter) OnError(err error) {
	c.errors.Add(1)
	c.log.WithError(err).Debug("module failed")
}

func (c *counter) OnModuleProcessComplete(cvpipe.Handle) {}

func run(ctx context.Context, s *Settings, out io.Writer) error {
	logger := log.New()
	if s.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	devices, err := s.SimDevices()
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	metrics, err := metric.New(reg)
	if err != nil {
		return fmt.Errorf("error registering metrics: %w", err)
	}

	p := cvpipe.New(
		&sim.Context{Devices: devices, Logger: logger},
		cvpipe.WithLogger(logger),
		cvpipe.WithMetrics(metrics),
		cvpipe.WithQueueSize(s.QueueSize),
	)
	defer p.Close()

	type registered struct {
		name   string
		module *sim.Module
		handle cvpipe.Handle
	}
	modules := make([]registered, 0, len(s.Modules))
	for _, ms := range s.Modules {
		configs := make([]config.Supported, 0, len(ms.Configs))
		for _, cs := range ms.Configs {
			c, err := cs.Supported()
			if err != nil {
				return fmt.Errorf("module %s: %w", ms.Name, err)
			}
			configs = append(configs, c)
		}
		m := sim.NewModule(configs, sim.WithLoad(ms.Load), sim.WithHistory(ms.History))
		h, err := p.AddModule(m)
		if err != nil {
			return fmt.Errorf("module %s: %w", ms.Name, err)
		}
		logger.WithFields(logrus.Fields{"module": ms.Name, "uid": m.UID()}).Debug("module registered")
		modules = append(modules, registered{name: ms.Name, module: m, handle: h})
	}

	restriction, err := s.Restriction.Supported()
	if err != nil {
		return fmt.Errorf("restriction: %w", err)
	}
	if err := p.Configure(restriction); err != nil {
		return fmt.Errorf("error configuring pipeline: %w", err)
	}
	cb := &counter{log: logger}
	if err := p.Start(cb); err != nil {
		return fmt.Errorf("error starting pipeline: %w", err)
	}

	if err := wait(ctx, s, reg); err != nil {
		return err
	}
	if err := p.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop pipeline")
	}

	actual, err := p.CurrentConfig()
	if err != nil {
		return err
	}
	r := Report{
		Device: fromActual(actual),
		Sets:   cb.sets.Load(),
		Errors: cb.errors.Load(),
	}
	for _, m := range modules {
		mc, err := p.ModuleConfig(m.handle)
		if err != nil {
			return err
		}
		stats := m.module.Stats()
		r.Modules = append(r.Modules, ModuleReport{
			Name:      m.name,
			UID:       m.module.UID(),
			Config:    fromActual(mc),
			Processed: stats.Processed,
			Gaps:      stats.Gaps,
		})
	}
	return yaml.NewEncoder(out).Encode(r)
}

// wait blocks until streaming time is over or context is done. Metrics are
// served meanwhile if listen address is set.
func wait(ctx context.Context, s *Settings, reg *prometheus.Registry) error {
	if s.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Duration)
		defer cancel()
	}
	g, ctx := errgroup.WithContext(ctx)
	if s.Listen != "" {
		srv := &http.Server{
			Addr:    s.Listen,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("error serving metrics: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Shutdown(context.Background())
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return g.Wait()
}
