package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"anchorcore/config"
	"anchorcore/native/anchor"
	"anchorcore/storage"
)

type auditReport struct {
	Protocol struct {
		MinMintWei      string `json:"minMintWei"`
		MinBurnWei      string `json:"minBurnWei"`
		MaxDebtRatioBps uint64 `json:"maxDebtRatioBps"`
	} `json:"protocol"`
	Journal struct {
		Records   uint64 `json:"records"`
		LastKind  string `json:"lastKind,omitempty"`
		PoolAfter string `json:"poolAfterWei,omitempty"`
	} `json:"journal"`
}

func main() {
	configPath := flag.String("config", "./config.toml", "Path to configuration file")
	journalPath := flag.String("journal", "", "Journal database path (defaults to <DataDir>/journal)")
	format := flag.String("format", "json", "Output format: json or csv")
	start := flag.Uint64("start", 0, "First journal sequence to export (csv only)")
	limit := flag.Int("limit", 0, "Maximum records to export, 0 for all (csv only)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	path := *journalPath
	if path == "" {
		path = cfg.JournalDir()
	}
	db, err := storage.NewLevelDBReadOnly(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open journal: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	journal := anchor.NewJournal(db)

	switch *format {
	case "csv":
		records, err := journal.List(*start, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list journal: %v\n", err)
			os.Exit(1)
		}
		if err := anchor.ExportCSV(os.Stdout, records); err != nil {
			fmt.Fprintf(os.Stderr, "failed to export csv: %v\n", err)
			os.Exit(1)
		}
	case "json":
		params, err := cfg.Protocol.Parameters()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to parse protocol parameters: %v\n", err)
			os.Exit(1)
		}
		total, err := journal.Len()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read journal: %v\n", err)
			os.Exit(1)
		}

		report := auditReport{}
		report.Protocol.MinMintWei = params.MinMintWei.String()
		report.Protocol.MinBurnWei = params.MinBurnWei.String()
		report.Protocol.MaxDebtRatioBps = params.MaxDebtRatioBps
		report.Journal.Records = total
		if total > 0 {
			last, ok, err := journal.Get(total - 1)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to read last record: %v\n", err)
				os.Exit(1)
			}
			if ok {
				report.Journal.LastKind = last.Kind
				if last.PoolAfter != nil {
					report.Journal.PoolAfter = last.PoolAfter.String()
				}
			}
		}

		output, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode report: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(output))
	default:
		fmt.Fprintf(os.Stderr, "unknown format %q\n", *format)
		os.Exit(1)
	}
}
