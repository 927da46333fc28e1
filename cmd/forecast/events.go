package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresuchdata/autopo-py/forecast/internal/calendar"
	"github.com/andresuchdata/autopo-py/forecast/internal/config"
	"github.com/urfave/cli/v2"
)

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "List the promotional event windows used for demand adjustment",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Usage:   "Event calendar file (yaml or json); defaults to the built-in calendar",
				EnvVars: []string{"FORECAST_EVENTS_FILE"},
			},
		},
		Action: func(c *cli.Context) error {
			path := c.String("file")
			if path == "" {
				path = config.Load().Forecast.EventsFile
			}
			cal, err := calendar.LoadOrDefault(path)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTART\tEND\tDAYS")
			for _, win := range cal.Windows() {
				days := int(win.End.Sub(win.Start).Hours()/24) + 1
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", win.Name, win.Start.Format("2006-01-02"), win.End.Format("2006-01-02"), days)
			}
			return w.Flush()
		},
	}
}
