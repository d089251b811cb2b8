/**
 * Sentinel Control.
 *
 * A small terminal operator tool that opens the same database
 * sentineld writes to and renders devices/flows/threats to a table.
 * An operator convenience only: it opens one read connection and
 * never starts a capture.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kleaSCM/sentinel/internal/cli"
	applog "github.com/kleaSCM/sentinel/internal/log"
	"github.com/kleaSCM/sentinel/internal/storage"
)

func main() {
	dbPath := flag.String("db", "sentinel.db", "sqlite database path")
	flag.Parse()

	logger, err := applog.New(false)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sentinelctl:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(ctx, *dbPath, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sentinelctl: failed to open database:", err)
		os.Exit(1)
	}
	defer store.Close()

	menu := cli.NewMenu("Sentinel Control")
	menu.AddOption("List Devices", func() error { return listDevices(ctx, store) })
	menu.AddOption("List Recent Flows", func() error { return listFlows(ctx, store) })
	menu.AddOption("List Active Threats", func() error { return listThreats(ctx, store) })
	menu.AddOption("Dismiss a Threat", func() error { return dismissThreat(ctx, store) })
	menu.AddOption("Database Stats", func() error { return showStats(ctx, store) })
	menu.AddOption("Run Retention Cleanup Now", func() error { return runCleanup(ctx, store) })
	menu.AddOption("Exit", func() error { return nil })

	if err := menu.Display(); err != nil {
		fmt.Fprintln(os.Stderr, "sentinelctl:", err)
		os.Exit(1)
	}
}

func listDevices(ctx context.Context, store storage.Storage) error {
	devices, err := store.ListDevices(ctx)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []string{
			d.Name,
			d.IPAddress,
			d.MACAddress,
			string(d.Type),
			d.Vendor,
			fmt.Sprintf("%d", d.ThreatScore),
			d.LastSeen.Format(time.RFC3339),
		})
	}
	cli.Table([]string{"Name", "IP", "MAC", "Type", "Vendor", "ThreatScore", "LastSeen"}, rows)
	cli.PressEnterToContinue()
	return nil
}

func listFlows(ctx context.Context, store storage.Storage) error {
	flows, err := store.GetFlows(ctx, storage.FlowFilter{Page: storage.Page{Limit: 50}})
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(flows))
	for _, f := range flows {
		rows = append(rows, []string{
			f.Key.String(),
			string(f.State),
			f.Application,
			string(f.ThreatLevel),
			fmt.Sprintf("%d", f.TotalBytes()),
			f.DstDomain,
		})
	}
	cli.Table([]string{"Flow", "Status", "App", "Threat", "Bytes", "Domain"}, rows)
	cli.PressEnterToContinue()
	return nil
}

func listThreats(ctx context.Context, store storage.Storage) error {
	dismissed := false
	threats, err := store.GetThreats(ctx, storage.ThreatFilter{
		Page:      storage.Page{Limit: 50},
		Dismissed: &dismissed,
	})
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(threats))
	for _, t := range threats {
		rows = append(rows, []string{
			t.ID,
			string(t.Type),
			string(t.Severity),
			t.DeviceID,
			t.Description,
			t.Timestamp.Format(time.RFC3339),
		})
	}
	cli.Table([]string{"ID", "Type", "Severity", "Device", "Description", "Timestamp"}, rows)
	cli.PressEnterToContinue()
	return nil
}

func dismissThreat(ctx context.Context, store storage.Storage) error {
	id, err := cli.Prompt("Threat ID to dismiss: ")
	if err != nil {
		return err
	}
	if err := store.DismissThreat(ctx, id); err != nil {
		return err
	}
	cli.ShowMessage("Threat dismissed.")
	return nil
}

func showStats(ctx context.Context, store storage.Storage) error {
	stats, err := store.GetDatabaseStats(ctx)
	if err != nil {
		return err
	}
	cli.Table(
		[]string{"Devices", "Flows", "Threats", "DB Size (bytes)"},
		[][]string{{
			fmt.Sprintf("%d", stats.DeviceCount),
			fmt.Sprintf("%d", stats.FlowCount),
			fmt.Sprintf("%d", stats.ThreatCount),
			fmt.Sprintf("%d", stats.DBSizeBytes),
		}},
	)
	cli.PressEnterToContinue()
	return nil
}

func runCleanup(ctx context.Context, store storage.Storage) error {
	days, err := cli.PromptInt("Retention window in days: ")
	if err != nil {
		return err
	}
	flowsDeleted, threatsDeleted, err := store.CleanupOldData(ctx, days)
	if err != nil {
		return err
	}
	cli.ShowMessage(fmt.Sprintf("Deleted %d flows and %d threats older than %d days.", flowsDeleted, threatsDeleted, days))
	return nil
}
