package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jkassis/msgstream"
)

var logger = zap.NewNop()

type rootFlags struct {
	config      string
	capacity    int
	debug       bool
	metricsAddr string
	opts        msgstream.Options
}

func main() {
	if err := newRoot().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:          "msgstream",
		Short:        "Bounded, partitioned and durable message streams",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return f.setup()
		},
	}
	root.PersistentFlags().StringVar(&f.config, "config", "", "options file (.yaml, .yml or .json)")
	root.PersistentFlags().IntVar(&f.capacity, "capacity", 10, "stream capacity")
	root.PersistentFlags().BoolVar(&f.debug, "debug", false, "debug logging")
	root.PersistentFlags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	root.AddCommand(newAppendCommand(f), newReadCommand(f), newPartitionCommand(f))
	return root
}

func (f *rootFlags) setup() error {
	l, err := msgstream.NewProductionLogger(f.debug)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = l
	msgstream.SetLogger(l)

	f.opts, err = msgstream.LoadOptions(f.config)
	if err != nil {
		return err
	}

	if f.metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("Prometheus metrics server started", zap.String("addr", f.metricsAddr))
			if err := http.ListenAndServe(f.metricsAddr, mux); err != nil {
				logger.Error("Metrics server stopped", zap.Error(err))
			}
		}()
	}
	return nil
}

func newAppendCommand(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "append FILE MESSAGE...",
		Short: "Append messages to a durable stream file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := msgstream.DurableStreamMake(f.capacity, args[0], msgstream.WithOptions(f.opts))
			if err != nil {
				return err
			}
			for _, m := range args[1:] {
				if err := d.Append(m); err != nil {
					d.Close()
					return err
				}
			}
			if err := d.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d messages in %s\n", d.MessageCount(), args[0])
			return nil
		},
	}
}

func newReadCommand(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "read FILE START END",
		Short: "Print messages [START, END) of a durable stream file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("start: %w", err)
			}
			end, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("end: %w", err)
			}
			d, err := msgstream.DurableStreamMake(f.capacity, args[0], msgstream.WithOptions(f.opts))
			if err != nil {
				return err
			}
			defer d.Close()

			msgs, err := d.ReadRange(start, end)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}

func newPartitionCommand(f *rootFlags) *cobra.Command {
	var durable string
	cmd := &cobra.Command{
		Use:   "partition KEY=MESSAGE...",
		Short: "Publish keyed messages into a partitioned stream and print each partition",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, err := msgstream.PartitionedStreamMake(f.capacity, nil, msgstream.WithOptions(f.opts))
			if err != nil {
				return err
			}
			if durable != "" {
				d, err := msgstream.DurableStreamMake(f.opts.PartitionCapacity, durable, msgstream.WithOptions(f.opts))
				if err != nil {
					return err
				}
				if err := ps.SetPartition(0, d); err != nil {
					return err
				}
			}
			ss, err := msgstream.SubscriberStreamMake(ps, msgstream.LogSubscriberMake(logger))
			if err != nil {
				return err
			}
			defer ss.Close()

			for _, arg := range args {
				key, msg, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("%q is not KEY=MESSAGE", arg)
				}
				if err := ss.Publish(key, msg); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, key := range ps.Keys() {
				p, ok := ps.PartitionFor(key)
				if !ok {
					return fmt.Errorf("no partition bound to %q", key)
				}
				fmt.Fprintf(out, "%s: %s\n", key, strings.Join(p.Messages(), ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&durable, "durable", "", "back the first partition with this file")
	return cmd
}
