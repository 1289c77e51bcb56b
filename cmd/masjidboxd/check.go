package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"masjidbox-bridge/internal/coordinator"
	"masjidbox-bridge/internal/masjidbox"
	"masjidbox-bridge/internal/platform"
	"masjidbox-bridge/internal/sensor"
	"masjidbox-bridge/internal/setup"
)

type checkOptions struct {
	slug    string
	apiKey  string
	days    int
	baseURL string
	proxy   string
	json    bool
}

func newCheckCmd() *cobra.Command {
	var opts checkOptions
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Fetch a place once and print its sensor states",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := masjidbox.NewClient(opts.proxy)
			client.BaseURL = opts.baseURL
			return runCheck(cmd.Context(), cmd.OutOrStdout(), client, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.slug, "slug", "", "Place slug")
	f.StringVar(&opts.apiKey, "apikey", "", "MasjidBox API key")
	f.IntVar(&opts.days, "days", masjidbox.DefaultDays, "Days of timetable to request")
	f.StringVar(&opts.baseURL, "base-url", masjidbox.DefaultBaseURL, "API base URL")
	f.StringVar(&opts.proxy, "proxy", "", "HTTP proxy URL")
	f.BoolVar(&opts.json, "json", false, "Output as JSON")
	return cmd
}

func runCheck(ctx context.Context, w io.Writer, fetcher coordinator.Fetcher, opts checkOptions) error {
	place, err := setup.Validate(setup.Form{Slug: opts.slug, APIKey: opts.apiKey, Days: &opts.days})
	if err != nil {
		return err
	}

	data, err := fetcher.Fetch(ctx, masjidbox.Request{Slug: place.Slug, APIKey: place.APIKey, Days: place.Days})
	if err != nil {
		return err
	}

	states := platform.StatesFor(sensor.ForPlace(place.Slug), data)
	if opts.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(states)
	}
	return printStates(w, states)
}

func printStates(w io.Writer, states []platform.SensorState) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SENSOR\tSTATE")
	for _, st := range states {
		value := "unknown"
		if st.State != nil {
			value = *st.State
		}
		fmt.Fprintf(tw, "%s\t%s\n", st.Name, value)
	}
	return tw.Flush()
}
