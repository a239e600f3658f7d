/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package internal holds the shared entry points of the ledger binaries.
package internal

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"

	"github.com/Jvryan92/epochcore-RAS-sub008/audit"
	"github.com/Jvryan92/epochcore-RAS-sub008/capsule"
	"github.com/Jvryan92/epochcore-RAS-sub008/chain"
	"github.com/Jvryan92/epochcore-RAS-sub008/conf"
	"github.com/Jvryan92/epochcore-RAS-sub008/inventory"
	"github.com/Jvryan92/epochcore-RAS-sub008/metric"
	"github.com/Jvryan92/epochcore-RAS-sub008/segment"
	"github.com/Jvryan92/epochcore-RAS-sub008/types"
	"github.com/Jvryan92/epochcore-RAS-sub008/utils"
	"github.com/Jvryan92/epochcore-RAS-sub008/utils/log"
)

// ExitDrift is the exit status of an audit that found drift.
const ExitDrift = 2

var version = "unknown"

// parseFlags handles the only flag the binaries accept; everything else is
// read from the environment.
func parseFlags(name string) {
	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()
	if *showVersion {
		fmt.Printf("%v %v %v %v %v\n",
			name, version, runtime.GOOS, runtime.GOARCH, runtime.Version())
		os.Exit(0)
	}
}

// Generate runs a generator binary for domain and exits on failure.
func Generate(name, domain string) {
	parseFlags(name)

	cfg, err := conf.Load(conf.Defaults(domain))
	if err != nil {
		log.WithError(err).Fatal("load config failed")
	}
	// the binary decides the domain, DOMAIN only addresses the auditor
	cfg.Domain = domain
	log.SetStringLevel(cfg.LogLevel, log.InfoLevel)

	ctx, stop := utils.WithExitSignal(context.Background())
	defer stop()

	if err = generate(ctx, cfg, os.Stdout); err != nil {
		log.WithError(err).Fatal("generate ledger failed")
	}
}

func generate(ctx context.Context, cfg *conf.Config, out io.Writer) (err error) {
	o, err := chain.NewOptions(cfg)
	if err != nil {
		return
	}
	s, runErr := chain.Run(ctx, o)
	if err = o.Metrics.WriteTextfile(cfg.MetricsFile); err != nil {
		log.WithError(err).WithField("file", cfg.MetricsFile).Warn("write metrics failed")
	}
	if runErr != nil {
		return runErr
	}
	return writeJSON(out, s)
}

// Audit runs the auditor binary and exits with ExitDrift on findings.
func Audit(name string) {
	parseFlags(name)

	r, err := auditFromEnv(context.Background(), os.Getenv("DOMAIN"), os.Stdout)
	if err != nil {
		log.WithError(err).Fatal("audit ledger failed")
	}
	if err = r.Err(); err != nil {
		log.WithError(err).Error("ledger drifted")
		os.Exit(ExitDrift)
	}
}

func auditFromEnv(ctx context.Context, domain string, out io.Writer) (r *audit.Report, err error) {
	if _, err = segment.Columns(domain); err != nil {
		return nil, errors.Wrapf(conf.ErrInvalidConfig, "DOMAIN: %v", err)
	}
	cfg, err := conf.Load(conf.Defaults(domain))
	if err != nil {
		return
	}
	log.SetStringLevel(cfg.LogLevel, log.InfoLevel)
	return runAudit(ctx, cfg, out)
}

func runAudit(ctx context.Context, cfg *conf.Config, out io.Writer) (r *audit.Report, err error) {
	store, err := capsule.NewStore(cfg.OutDir, nil)
	if err != nil {
		return
	}
	var idx inventory.Index
	if cfg.IndexDir != "" {
		var ldb *inventory.LevelDBIndex
		if ldb, err = inventory.NewLevelDBIndex(filepath.Join(cfg.IndexDir, cfg.Domain)); err != nil {
			return
		}
		defer ldb.Close()
		idx = ldb
	}
	metrics := metric.NewLedger(cfg.Domain)
	a, err := audit.New(audit.Config{
		Domain:  cfg.Domain,
		Seed:    cfg.Seed,
		Store:   store,
		Index:   idx,
		Metrics: metrics,
	})
	if err != nil {
		return
	}
	if r, err = a.Run(ctx); err != nil {
		return
	}
	if merr := metrics.WriteTextfile(cfg.MetricsFile); merr != nil {
		log.WithError(merr).WithField("file", cfg.MetricsFile).Warn("write metrics failed")
	}
	err = writeJSON(out, r)
	return
}

func writeJSON(out io.Writer, v interface{}) error {
	raw, err := types.Marshal(v)
	if err != nil {
		return err
	}
	_, err = out.Write(append(raw, '\n'))
	return errors.Wrap(err, "write output")
}
