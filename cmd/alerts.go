package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/centrallog/common/messaging"
	natsclient "github.com/telhawk-systems/centrallog/common/messaging/nats"
	"github.com/telhawk-systems/centrallog/internal/client"
	"github.com/telhawk-systems/centrallog/internal/models"
	"github.com/telhawk-systems/centrallog/internal/notify"
	"github.com/telhawk-systems/centrallog/internal/output"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List, triage and watch alerts",
}

var alertsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List alerts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := printerFor(cmd)
		if err != nil {
			return err
		}
		status, _ := cmd.Flags().GetString("status")
		timeRange, _ := cmd.Flags().GetString("range")
		user, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := clientFor(cmd).ListAlerts(cmd.Context(), client.AlertQuery{
			TenantID:  tenantFlag(cmd),
			Status:    status,
			TimeRange: timeRange,
			User:      user,
			Limit:     limit,
		})
		if err != nil {
			return fmt.Errorf("failed to list alerts: %w", err)
		}

		if p.Structured() {
			return p.Data(list)
		}
		if len(list) == 0 {
			p.Info("No alerts found")
			return nil
		}
		p.Table(alertTable(list...))
		return nil
	},
}

var alertsUpdateCmd = &cobra.Command{
	Use:   "update <id> <OPEN|INVESTIGATING|RESOLVED>",
	Short: "Change an alert's status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := printerFor(cmd)
		if err != nil {
			return err
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid alert id %q", args[0])
		}

		alert, err := clientFor(cmd).UpdateAlertStatus(cmd.Context(), id, args[1])
		if err != nil {
			return fmt.Errorf("failed to update alert %d: %w", id, err)
		}
		if p.Structured() {
			return p.Data(alert)
		}
		p.Success("Alert %d is now %s", alert.ID, alert.Status)
		return nil
	},
}

var alertsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream alert lifecycle events from NATS",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := printerFor(cmd)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		natsCfg := cfg.NATS.ClientConfig()
		if url, _ := cmd.Flags().GetString("nats-url"); url != "" {
			natsCfg.URL = url
		}
		natsCfg.Name = "centrallog-watch"
		tenantID := tenantFlag(cmd)

		nc, err := natsclient.Connect(natsCfg, nil)
		if err != nil {
			return err
		}
		defer nc.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		events := make(chan notify.AlertEvent, 64)
		_, err = nc.Subscribe(messaging.SubjectAlertsAll, func(_ context.Context, msg *messaging.Message) error {
			if !watchesTenant(tenantID, msg) {
				return nil
			}
			var ev notify.AlertEvent
			if err := msg.Decode(&ev); err != nil {
				return err
			}
			select {
			case events <- ev:
			default:
				return fmt.Errorf("dropped alert event, printer is behind")
			}
			return nil
		})
		if err != nil {
			return err
		}

		if !p.Structured() {
			p.Info("Watching %s on %s (Ctrl-C to stop)", messaging.SubjectAlertsAll, natsCfg.URL)
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-events:
				if err := printAlertEvent(p, ev); err != nil {
					return err
				}
			}
		}
	},
}

// watchesTenant reports whether msg belongs to the watched tenant. Messages
// without a tenant header are only shown when watching every tenant.
func watchesTenant(tenantID *int64, msg *messaging.Message) bool {
	if tenantID == nil {
		return true
	}
	id, ok := msg.TenantID()
	return ok && id == *tenantID
}

func printAlertEvent(p *output.Printer, ev notify.AlertEvent) error {
	if p.Structured() {
		return p.Data(ev)
	}
	if ev.Alert == nil {
		return nil
	}
	line := fmt.Sprintf("%s  %-8s  #%d %s user=%s ip=%s count=%d status=%s",
		ev.Timestamp.Format("15:04:05"), ev.Action, ev.Alert.ID, ev.Alert.RuleName,
		ev.Alert.User, ev.Alert.IP, ev.Alert.Count, ev.Alert.Status)
	switch ev.Action {
	case notify.ActionCreated:
		p.Warn("%s", line)
	case notify.ActionResolved:
		p.Success("%s", line)
	default:
		p.Info("%s", line)
	}
	return nil
}

func alertTable(list ...*models.Alert) *output.Table {
	t := output.NewTable("ID", "Tenant", "Rule", "User", "IP", "Count", "Status", "Created")
	for _, a := range list {
		ip := a.IP
		if ip == "" && len(a.InvolvedIPs) > 0 {
			ip = fmt.Sprintf("%d ips", len(a.InvolvedIPs))
		}
		t.AddRow(
			strconv.FormatInt(a.ID, 10),
			strconv.FormatInt(a.TenantID, 10),
			a.RuleName,
			a.User,
			ip,
			strconv.Itoa(a.Count),
			string(a.Status),
			a.Time.Local().Format("2006-01-02 15:04"),
		)
	}
	return t
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsListCmd, alertsUpdateCmd, alertsWatchCmd)

	alertsListCmd.Flags().Int64("tenant-id", 0, "tenant id (default: every tenant)")
	alertsListCmd.Flags().String("status", "", "OPEN, INVESTIGATING or RESOLVED")
	alertsListCmd.Flags().String("range", "", "only alerts created within 15m, 1h, 24h or 7d")
	alertsListCmd.Flags().String("user", "", "only alerts for this user")
	alertsListCmd.Flags().Int("limit", 0, "maximum alerts to return")

	alertsWatchCmd.Flags().Int64("tenant-id", 0, "only show alerts for this tenant")
	alertsWatchCmd.Flags().String("nats-url", "", "NATS URL (default: nats.url from config)")
}
