package main

import (
	"context"
	"fmt"
	"os"

	"github.com/andresuchdata/autopo-py/forecast/internal/analytics"
	"github.com/andresuchdata/autopo-py/forecast/internal/config"
	"github.com/andresuchdata/autopo-py/forecast/internal/repository/postgres"
	"github.com/andresuchdata/autopo-py/forecast/pkg/logger"
	"github.com/urfave/cli/v2"
)

type contextKey string

const dbKey contextKey = "db"

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "db-url",
		Usage:    "Database connection string",
		Required: true,
		EnvVars:  []string{"DATABASE_URL"},
	}
}

func initDB(c *cli.Context) error {
	db, err := analytics.Open(c.Context, c.String("db-url"), c.Int64("max-conns"))
	if err != nil {
		return err
	}
	c.Context = context.WithValue(c.Context, dbKey, db)
	return nil
}

func closeDB(c *cli.Context) error {
	if db, ok := c.Context.Value(dbKey).(*postgres.DB); ok && db != nil {
		return db.Close()
	}
	return nil
}

func dbFrom(c *cli.Context) (*postgres.DB, error) {
	db, ok := c.Context.Value(dbKey).(*postgres.DB)
	if !ok || db == nil {
		return nil, fmt.Errorf("database connection not found in context")
	}
	return db, nil
}

func setupLogging(c *cli.Context) error {
	cfg := config.Load()
	level := cfg.Log.Level
	if c.Bool("verbose") {
		level = "debug"
	}
	_, err := logger.Setup(logger.Options{Level: level})
	return err
}

func main() {
	app := &cli.App{
		Name:  "forecast",
		Usage: "Forecast product demand and plan replenishment from sales reports",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Enable debug logging"},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			runCommand(),
			{
				Name:  "seed",
				Usage: "Load recommendation CSV parts into the database",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.Int64Flag{Name: "max-conns", Value: 10, Usage: "Maximum concurrent database operations"},
					&cli.StringFlag{
						Name:    "dir",
						Usage:   "Directory containing recommendation CSV parts",
						Value:   "./data/seeds/recommendations",
						EnvVars: []string{"PIPELINE_OUTPUT_DIR"},
					},
				},
				Before: initDB,
				After:  closeDB,
				Action: seedRecommendations,
			},
			{
				Name:   "migrate",
				Usage:  "Create or update the database schema",
				Flags:  []cli.Flag{newDBURLFlag(), &cli.Int64Flag{Name: "max-conns", Value: 2}},
				Before: initDB,
				After:  closeDB,
				Action: migrate,
			},
			eventsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("forecast failed")
	}
}
