package main

import (
	"github.com/andresuchdata/autopo-py/forecast/internal/analytics"
	"github.com/andresuchdata/autopo-py/forecast/internal/repository/postgres"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func migrate(c *cli.Context) error {
	db, err := dbFrom(c)
	if err != nil {
		return err
	}
	if err := db.Migrate(c.Context); err != nil {
		return err
	}
	log.Info().Msg("schema is up to date")
	return nil
}

func seedRecommendations(c *cli.Context) error {
	db, err := dbFrom(c)
	if err != nil {
		return err
	}
	if err := db.Migrate(c.Context); err != nil {
		return err
	}

	processor := analytics.NewRecommendationProcessor(postgres.NewRecommendationRepository(db))
	_, err = processor.ProcessDir(c.Context, c.String("dir"))
	return err
}
