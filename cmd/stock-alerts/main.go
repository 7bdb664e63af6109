// Command stock-alerts sweeps the product ledgers and reports products below
// good stock. The storage backend is selected through the BOTTLECORE_STORAGE_*
// environment variables; output is a table or JSON. With -fail-on the command
// exits non-zero when alerts at or above the chosen severity exist, so it can
// gate cron jobs and reorder pipelines.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"bottlecore/internal/core"
	"bottlecore/pkg/domain"
)

var (
	exitFunc  = os.Exit
	openStore = func() (domain.PersistentStore, error) {
		return core.OpenPersistentStore(core.NewDefaultRulesEngine())
	}
)

// sweepReport is the JSON output shape.
type sweepReport struct {
	GeneratedAt time.Time             `json:"generated_at"`
	AlertCount  int                   `json:"alert_count"`
	Alerts      []domain.ProductAlert `json:"alerts"`
}

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("stock-alerts", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		format string
		failOn string
	)
	fs.StringVar(&format, "format", "table", "output format: table or json")
	fs.StringVar(&failOn, "fail-on", "critical", "exit non-zero when alerts at or above this severity exist: low, critical, out or none")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if format != "table" && format != "json" {
		fmt.Fprintf(stderr, "unknown format %q: use table or json\n", format)
		return 2
	}
	failRank, err := severityRank(failOn)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	store, err := openStore()
	if err != nil {
		fmt.Fprintf(stderr, "open store: %v\n", err)
		return 1
	}
	defer closeStore(store)

	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	svc := core.NewService(store, core.WithLogger(logger))

	alerts, err := svc.ClassifyAll(context.Background())
	if err != nil {
		fmt.Fprintf(stderr, "classify: %v\n", err)
		return 1
	}

	switch format {
	case "json":
		if err := writeJSON(stdout, alerts); err != nil {
			fmt.Fprintf(stderr, "encode report: %v\n", err)
			return 1
		}
	default:
		writeTable(stdout, alerts)
	}

	if failRank > 0 {
		breached := 0
		for _, alert := range alerts {
			if alert.Status.Rank() >= failRank {
				breached++
			}
		}
		if breached > 0 {
			fmt.Fprintf(stderr, "%d product(s) at or above %s severity\n", breached, failOn)
			return 1
		}
	}
	return 0
}

// severityRank maps a -fail-on value onto the stock status ordering. "none"
// disables the threshold.
func severityRank(value string) (int, error) {
	switch value {
	case "none":
		return 0, nil
	case string(domain.StockLow), string(domain.StockCritical), string(domain.StockOut):
		return domain.StockStatus(value).Rank(), nil
	default:
		return 0, fmt.Errorf("unknown severity %q: use low, critical, out or none", value)
	}
}

func writeTable(stdout io.Writer, alerts []domain.ProductAlert) {
	if len(alerts) == 0 {
		fmt.Fprintln(stdout, "stock ok: every active product is above its threshold")
		return
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tNAME\tSTATUS\tSEALED\tOPEN\tTOTAL\tTHRESHOLD")
	for _, alert := range alerts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			alert.ProductID, alert.Name, alert.Status,
			alert.SealedContainers, alert.OpenRemaining,
			alert.TotalAvailable, alert.MinThreshold)
	}
	_ = w.Flush()
}

func writeJSON(stdout io.Writer, alerts []domain.ProductAlert) error {
	if alerts == nil {
		alerts = []domain.ProductAlert{}
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(sweepReport{
		GeneratedAt: time.Now().UTC(),
		AlertCount:  len(alerts),
		Alerts:      alerts,
	})
}

func closeStore(store domain.PersistentStore) {
	if closer, ok := store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}
