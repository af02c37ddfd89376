package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kivaquery"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the query cache",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Summarise the query cache, -v lists every cached query",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		return a.results.WriteSummary(cmd.OutOrStdout(), verbose)
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [type...]",
	Short: "Delete cached results of the given query types, or of all of them",
	RunE: func(cmd *cobra.Command, args []string) error {
		types := make([]kivaquery.QueryType, 0, len(args))
		for _, arg := range args {
			qt, err := kivaquery.ParseQueryType(arg)
			if err != nil {
				return err
			}
			types = append(types, qt)
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.results.Clear(cmd.Context(), types...); err != nil {
			return err
		}

		return a.results.WriteSummary(cmd.OutOrStdout(), false)
	},
}

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Resolve locations through the geocode cache",
}

var geocodeShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Summarise the geocode cache, -v lists every location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, m, err := newGeocodeApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return m.WriteSummary(cmd.OutOrStdout(), verbose)
	},
}

var geocodeLookupCmd = &cobra.Command{
	Use:   "lookup <location>",
	Short: "Print the coordinates of a location",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, m, err := newGeocodeApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := m.GetGeoCode(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%v\t%v\n", args[0], c.Lat, c.Lon); err != nil {
			return err
		}

		return m.Save()
	},
}

var geocodeDistanceCmd = &cobra.Command{
	Use:   "distance <from> <to>",
	Short: "Print the great circle distance between two locations",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, m, err := newGeocodeApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		from, err := m.GetGeoCode(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		to, err := m.GetGeoCode(cmd.Context(), args[1])
		if err != nil {
			return err
		}

		km := kivaquery.DistanceBetween(from.Lat, from.Lon, to.Lat, to.Lon)
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%.1f km (%.1f miles)\n", km, kivaquery.ToMiles(km)); err != nil {
			return err
		}

		return m.Save()
	},
}

func init() {
	cacheCmd.AddCommand(cacheShowCmd, cacheClearCmd)
	geocodeCmd.AddCommand(geocodeShowCmd, geocodeLookupCmd, geocodeDistanceCmd)
}

func newGeocodeApp(cmd *cobra.Command) (*app, *kivaquery.GeoCodeManager, error) {
	a, err := newApp(cmd.Context())
	if err != nil {
		return nil, nil, err
	}

	geocoder := kivaquery.NewGoogleGeocoder(a.config.GoogleGeocodeAPIKey)
	m := kivaquery.NewGeoCodeManager(geocoder, a.config.GeocodeCache, a.logger)
	if err := m.Load(); err != nil {
		a.Close()
		return nil, nil, err
	}

	return a, m, nil
}
