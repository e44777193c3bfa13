package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/pppmon/pppmon"
	"github.com/pppmon/pppmon/config"
)

// checkCmd runs a single polling pass and prints the reconciled rows.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one polling pass and print the result",
	Long: `Connect to a router, fetch its live PPP sessions once and print them
reconciled against the expected names.

Names come from the config file. When none are configured the router's PPP
secrets are used instead. Flags override the router and filters from the
config.

Exit codes:
  0 - Pass completed
  1 - Connect rejected, backend unreachable or config invalid

Example:
  pppmon check -c config.yaml --router core-1
  pppmon check -c config.yaml --vendor huawei --csv > online.csv
  pppmon check -c config.yaml --mark alice --mark bob --checked-only --csv`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	f := checkCmd.Flags()
	f.StringP("config", "c", "", "path to config file (required)")
	f.String("router", "", "router id (defaults to the config's router)")
	f.String("vendor", "", "vendor filter, case-insensitive substring")
	f.String("search", "", "name filter, case-insensitive substring")
	f.StringSlice("mark", nil, "mark names as checked before export")
	f.Bool("checked-only", false, "export only checked rows")
	f.Bool("offline", false, "include offline rows and the Connected column in CSV output")
	f.Bool("csv", false, "write CSV instead of a table")
	_ = checkCmd.MarkFlagRequired("config")
}

func runCheck(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, closer := newLogger(cmd, cfg.Log, cfg.LogLevel())
	defer func() { _ = closer.Close() }()

	flags := cmd.Flags()
	router, _ := flags.GetString("router")
	if router == "" {
		router = cfg.Router
	}
	if router == "" {
		return errors.New("no router given: set router in the config or pass --router")
	}

	filters := cfg.Filters()
	if flags.Changed("vendor") {
		filters.Vendor, _ = flags.GetString("vendor")
	}
	if flags.Changed("search") {
		filters.Search, _ = flags.GetString("search")
	}

	names, err := cfg.ExpectedNames()
	if err != nil {
		return err
	}

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}
	m, err := pppmon.New(append(opts, pppmon.WithLogger(logger), pppmon.WithoutServer())...)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout.Duration()*3)
	defer cancel()

	view, err := m.PollOnce(ctx, router, names, filters)
	if err != nil {
		return err
	}

	marked, _ := flags.GetStringSlice("mark")
	markChecked(view.Rows, marked)

	out := cmd.OutOrStdout()
	if asCSV, _ := flags.GetBool("csv"); asCSV {
		checkedOnly, _ := flags.GetBool("checked-only")
		offline, _ := flags.GetBool("offline")
		return pppmon.WriteCSV(out, view.Rows, pppmon.ExportOptions{
			CheckedOnly:    checkedOnly,
			IncludeOffline: offline,
		})
	}

	renderCheck(out, view, time.Now())
	return nil
}

func markChecked(rows []pppmon.Row, names []string) {
	if len(names) == 0 {
		return
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	for i := range rows {
		if set[rows[i].Name] {
			rows[i].Checked = true
		}
	}
}

// renderCheck prints a status line, a summary line and the rows as a table.
func renderCheck(w io.Writer, v pppmon.View, now time.Time) {
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	state := red(v.State.String())
	if v.State == pppmon.StateConnected {
		state = green(v.State.String())
	}

	fmt.Fprintf(w, "Router %s", v.RouterID)
	if v.RouterIP != "" {
		fmt.Fprintf(w, " (%s)", v.RouterIP)
	}
	fmt.Fprintf(w, ": %s", state)
	if !v.LastConfirmedAt.IsZero() {
		fmt.Fprintf(w, ", confirmed %s", humanize.RelTime(v.LastConfirmedAt, now, "ago", "from now"))
	}
	if v.LastError != "" {
		fmt.Fprintf(w, " %s", faint("("+v.LastError+")"))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Online %s of %s expected, %s live sessions on the router\n",
		humanize.Comma(int64(v.ShownOnline)),
		humanize.Comma(int64(len(v.Expected))),
		humanize.Comma(int64(v.TotalOnline)),
	)

	if len(v.Rows) == 0 {
		fmt.Fprintln(w, "No rows match.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Name", "State", "IP", "MAC", "Vendor", "Uptime"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for i, r := range v.Rows {
		status := red("offline")
		if r.Online {
			status = green("online")
		}
		name := r.Name
		if r.Checked {
			name += " *"
		}
		table.Append([]string{strconv.Itoa(i + 1), name, status, r.IP, r.MAC, r.Vendor, r.Uptime})
	}
	table.Render()
}
