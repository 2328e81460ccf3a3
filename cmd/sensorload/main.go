//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of sensorload.
//
// sensorload is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// sensorload is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with sensorload. If not, see https://www.gnu.org/licenses/.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aaronlmathis/sensorload/config"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) error {
	return &exitError{code: code, err: err}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the CLI and maps the outcome to an exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout}
	defer func() {
		if err := a.Close(); err != nil && a.logger != nil {
			a.logger.Warn("closing resources", "error", err)
		}
	}()

	root := newRootCmd(a, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.code == exitInterrupted {
			fmt.Fprintln(stderr, "sensorload: interrupted")
		} else {
			fmt.Fprintf(stderr, "sensorload: %v\n", ee.err)
		}
		return ee.code
	}
	// flag and argument errors
	fmt.Fprintf(stderr, "sensorload: %v\n", err)
	return exitFailure
}

func newRootCmd(a *app, stderr io.Writer) *cobra.Command {
	var configFile, envFile, logLevel string

	root := &cobra.Command{
		Use:   "sensorload",
		Short: "Load IoT sensor readings from object storage into PostgreSQL",
		Long: "sensorload lists unprocessed sensor reading objects in a bucket, validates\n" +
			"every reading, inserts the valid ones into PostgreSQL in batches and marks\n" +
			"each loaded object as processed.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts := []config.LoadOption{config.WithFile(configFile), config.WithEnvFile(envFile)}
			cfg, err := config.Load(opts...)
			if err != nil {
				return fail(exitFailure, err)
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}

			logger, closer, err := config.NewLogger(cfg.Log, stderr)
			if err != nil {
				return fail(exitFailure, err)
			}
			a.cfg = cfg
			a.logger = logger
			a.onClose(closer)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file (default .env when present)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")

	root.AddCommand(
		newRunCmd(a),
		newSchemaCmd(a),
		newReportCmd(a),
		newGenerateCmd(a),
	)
	return root
}
