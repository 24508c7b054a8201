package main

import (
	"context"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/tonyphoesis/phoesis-website/services/booking-service/internal/availability"
	"github.com/tonyphoesis/phoesis-website/services/booking-service/internal/calendar"
	"github.com/tonyphoesis/phoesis-website/services/booking-service/internal/policy"
)

type options struct {
	date       string
	timezone   string
	policyFile string
	icsURL     string
	busy       []string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "slotctl",
		Short:        "Inspect meeting availability offline",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.date, "date", "", "requester-local date (YYYY-MM-DD)")
	root.PersistentFlags().StringVar(&opts.timezone, "timezone", availability.HomeZoneName, "requester IANA time zone")
	root.PersistentFlags().StringVar(&opts.policyFile, "policy", "", "working hours policy YAML file")
	root.PersistentFlags().StringVar(&opts.icsURL, "ics", "", "ICS feed URL or file to read busy time from")
	root.PersistentFlags().StringArrayVar(&opts.busy, "busy", nil, "extra busy interval START/END in RFC 3339 (repeatable)")
	_ = root.MarkPersistentFlagRequired("date")

	root.AddCommand(newSlotsCmd(opts), newReserveCmd(opts))
	return root
}

func newSlotsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "slots",
		Short: "Print the slot grid for a date",
		Long: `Print every candidate slot for the requester-local date with its busy marker.

Examples:
  slotctl slots --date 2025-11-28 --timezone America/New_York
  slotctl slots --date 2025-11-28 --timezone Asia/Tokyo --ics ./calendar.ics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			grid := in.engine.ComputeDaySlots(in.date, in.loc, in.busy)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s in %s (%d slots)\n", in.date, in.loc, len(grid.Slots))
			fmt.Fprintln(out, strings.Repeat("-", 40))
			for _, s := range grid.Slots {
				state := "open"
				if s.Busy {
					state = "busy"
				}
				fmt.Fprintf(out, "%s  %-4s  %s\n", s.Label, state, s.Start.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newReserveCmd(opts *options) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "reserve",
		Short: "Check whether a slot could be reserved",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			chosen, err := in.engine.ResolveSlot(in.date, in.loc, at)
			if err != nil {
				return err
			}
			res := in.engine.ReserveSlot(in.date, in.loc, chosen, in.busy)
			out := cmd.OutOrStdout()
			if !res.Confirmed {
				fmt.Fprintf(out, "rejected: %s\n", res.Reason)
				return nil
			}
			fmt.Fprintf(out, "confirmed: %s %s-%s (%s)\n", in.date, res.Label, res.End.Format("15:04"), in.loc)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "time", "", "requester-local slot start (HH:MM)")
	_ = cmd.MarkFlagRequired("time")
	return cmd
}

type inputs struct {
	engine *availability.Engine
	date   availability.Date
	loc    *time.Location
	busy   []availability.Interval
}

func (o *options) load(ctx context.Context) (inputs, error) {
	pol, err := policy.Load(o.policyFile)
	if err != nil {
		return inputs{}, err
	}
	engine, err := availability.New(pol)
	if err != nil {
		return inputs{}, err
	}
	date, err := availability.ParseDate(o.date)
	if err != nil {
		return inputs{}, err
	}
	loc, err := time.LoadLocation(o.timezone)
	if err != nil {
		return inputs{}, fmt.Errorf("unknown timezone %q", o.timezone)
	}

	busy, err := parseBusy(o.busy)
	if err != nil {
		return inputs{}, err
	}
	if o.icsURL != "" {
		feed, err := calendar.NewICSFeed(calendar.ICSConfig{URL: o.icsURL, DefaultZone: pol.HomeZone.String()}, nil)
		if err != nil {
			return inputs{}, err
		}
		if err := feed.Refresh(ctx); err != nil {
			return inputs{}, err
		}
		start, end := calendar.DayRange(date, loc)
		events, err := feed.ListEvents(ctx, start, end, "")
		if err != nil {
			return inputs{}, err
		}
		busy = append(busy, calendar.BusyIntervals(events)...)
	}
	return inputs{engine: engine, date: date, loc: loc, busy: busy}, nil
}

func parseBusy(values []string) ([]availability.Interval, error) {
	var out []availability.Interval
	for _, v := range values {
		startRaw, endRaw, ok := strings.Cut(v, "/")
		if !ok {
			return nil, fmt.Errorf("busy interval %q: want START/END", v)
		}
		start, err := time.Parse(time.RFC3339, startRaw)
		if err != nil {
			return nil, fmt.Errorf("busy interval %q: %w", v, err)
		}
		end, err := time.Parse(time.RFC3339, endRaw)
		if err != nil {
			return nil, fmt.Errorf("busy interval %q: %w", v, err)
		}
		out = append(out, availability.Interval{Start: start, End: end})
	}
	return out, nil
}
