package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/centrallog/internal/dashboard"
	"github.com/telhawk-systems/centrallog/internal/output"
	"github.com/telhawk-systems/centrallog/internal/storage"
)

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "List known tenants",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := printerFor(cmd)
		if err != nil {
			return err
		}
		tenants, err := clientFor(cmd).ListTenants(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list tenants: %w", err)
		}
		if p.Structured() {
			return p.Data(tenants)
		}
		t := output.NewTable("ID", "Name", "Created")
		for _, tn := range tenants {
			t.AddRow(strconv.FormatInt(tn.ID, 10), tn.Name, tn.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		p.Table(t)
		return nil
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Summarize events and alerts over a time range",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := printerFor(cmd)
		if err != nil {
			return err
		}
		rng, _ := cmd.Flags().GetString("range")
		tenantID := tenantFlag(cmd)

		sum, err := clientFor(cmd).Dashboard(cmd.Context(), tenantID, rng)
		if err != nil {
			return fmt.Errorf("failed to load dashboard: %w", err)
		}
		if p.Structured() {
			return p.Data(sum)
		}

		p.Info("Tenant %s, last %s", formatTenant(tenantID), sum.Range)
		totals := output.NewTable("Events", "Unique IPs", "Unique Users", "Alerts")
		totals.AddRow(strconv.Itoa(sum.TotalEvents), strconv.Itoa(sum.UniqueIPs),
			strconv.Itoa(sum.UniqueUsers), strconv.Itoa(sum.TotalAlerts))
		p.Table(totals)

		for _, top := range []struct {
			title string
			rows  []storage.KeyCount
		}{
			{"Top IPs", sum.TopIPs},
			{"Top Users", sum.TopUsers},
			{"Top Event Types", sum.TopEventTypes},
		} {
			if len(top.rows) == 0 {
				continue
			}
			p.Info("\n%s", top.title)
			p.Table(keyCountTable(top.rows))
		}
		return nil
	},
}

var activityCmd = &cobra.Command{
	Use:   "activity [user]",
	Short: "Show one user's activity, or everyone's when no user is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := printerFor(cmd)
		if err != nil {
			return err
		}
		user := dashboard.AllUsers
		if len(args) == 1 {
			user = args[0]
		}
		rng, _ := cmd.Flags().GetString("range")

		act, err := clientFor(cmd).UserActivity(cmd.Context(), tenantFlag(cmd), user, rng)
		if err != nil {
			return fmt.Errorf("failed to load activity: %w", err)
		}
		if p.Structured() {
			return p.Data(act)
		}

		p.Info("User %s, last %s: %d events from %d IPs, %d alerts",
			act.User, act.Range, act.Summary.TotalEvents, act.Summary.UniqueIPs, act.Summary.TotalAlerts)
		if len(act.RecentEvents) > 0 {
			t := output.NewTable("Time", "Tenant", "Source", "Event", "User", "IP")
			for _, ev := range act.RecentEvents {
				t.AddRow(ev.Time.Local().Format(time.DateTime), strconv.FormatInt(ev.TenantID, 10),
					string(ev.Source), ev.EventType, ev.User, ev.IP)
			}
			p.Table(t)
		}
		if len(act.RelatedAlerts) > 0 {
			p.Info("\nRelated alerts")
			p.Table(alertTable(act.RelatedAlerts...))
		}
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [query]",
	Short: "Search stored events, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := printerFor(cmd)
		if err != nil {
			return err
		}
		q := dashboard.SearchQuery{TenantID: tenantFlag(cmd)}
		if len(args) == 1 {
			q.Q = args[0]
		}
		q.User, _ = cmd.Flags().GetString("user")
		q.Page, _ = cmd.Flags().GetInt("page")
		q.Limit, _ = cmd.Flags().GetInt("limit")
		since, _ := cmd.Flags().GetDuration("since")
		if since > 0 {
			q.From = time.Now().Add(-since)
		}

		res, err := clientFor(cmd).SearchLogs(cmd.Context(), q)
		if err != nil {
			return fmt.Errorf("failed to search logs: %w", err)
		}
		if p.Structured() {
			return p.Data(res)
		}
		if len(res.Events) == 0 {
			p.Info("No events found")
			return nil
		}

		t := output.NewTable("ID", "Time", "Tenant", "Source", "Event", "User", "Src IP", "Action")
		for _, ev := range res.Events {
			t.AddRow(strconv.FormatInt(ev.ID, 10), ev.Timestamp.Local().Format(time.DateTime), ev.Tenant,
				string(ev.Source), ev.EventType, ev.User, ev.SrcIP, ev.Action)
		}
		p.Table(t)
		p.Info("\nPage %d, showing %d of %d events", res.Page, len(res.Events), res.Total)
		return nil
	},
}

func keyCountTable(rows []storage.KeyCount) *output.Table {
	t := output.NewTable("Value", "Count")
	for _, kc := range rows {
		t.AddRow(kc.Key, strconv.Itoa(kc.Count))
	}
	return t
}

func init() {
	rootCmd.AddCommand(tenantsCmd, dashboardCmd, activityCmd, logsCmd)

	for _, c := range []*cobra.Command{dashboardCmd, activityCmd, logsCmd} {
		c.Flags().Int64("tenant-id", 0, "tenant id (default: every tenant)")
	}
	for _, c := range []*cobra.Command{dashboardCmd, activityCmd} {
		c.Flags().String("range", "24h", "15m, 1h, 24h or 7d")
	}
	logsCmd.Flags().String("user", "", "only events for this user")
	logsCmd.Flags().Duration("since", 0, "only events newer than this, e.g. 30m")
	logsCmd.Flags().Int("page", 1, "page number")
	logsCmd.Flags().Int("limit", dashboard.DefaultSearchLimit, "events per page")
}
