package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/layer-3/planmint/internal/app"
	"github.com/layer-3/planmint/internal/config"
	"github.com/layer-3/planmint/internal/logging"
	"github.com/layer-3/planmint/service"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	cliApp := &cli.App{
		Name:  "planmint-audit",
		Usage: "report soulbound holders that no longer hold a plan token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"PLANMINT_CONFIG"},
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "repeat the audit at this interval; zero runs once",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print each report as JSON",
			},
			&cli.BoolFlag{
				Name:  "fail-on-flagged",
				Usage: "exit with status 2 when a single run flags any wallet",
			},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("audit failed")
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	auditor := service.NewAuditService(rt.Registry, rt.Ledger, rt.EventLog, rt.Publisher, logger)

	interval := c.Duration("interval")
	if interval <= 0 {
		report, err := auditor.Audit(ctx)
		if err != nil {
			return err
		}
		if err := printReport(c, report); err != nil {
			return err
		}
		if c.Bool("fail-on-flagged") && len(report.Flagged) > 0 {
			return cli.Exit(fmt.Sprintf("%d wallet(s) flagged", len(report.Flagged)), 2)
		}
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		report, err := auditor.Audit(ctx)
		if err != nil {
			logger.WithError(err).Error("audit run failed")
		} else if err := printReport(c, report); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printReport(c *cli.Context, report service.AuditReport) error {
	out := c.App.Writer
	if c.Bool("json") {
		return json.NewEncoder(out).Encode(report)
	}

	fmt.Fprintf(out, "checked %d soulbound holder(s), %d released, %d error(s), %d flagged\n",
		report.Checked, report.Released, report.Errors, len(report.Flagged))
	for _, f := range report.Flagged {
		fmt.Fprintf(out, "  %s  holds %s and no plan token (%s)\n", f.Wallet, f.SoulboundMint, f.CheckedAt.Format(time.RFC3339))
	}
	return nil
}

