package main

import (
	"flag"
	"log"
	"os"

	"expensemgr/process/report"
	"expensemgr/process/sanitize"
)

func main() {
	var opts sanitize.Options
	flag.StringVar(&opts.Tables, "tables", sanitize.DefaultTables, "Comma-separated list of tables to truncate")
	flag.BoolVar(&opts.DryRun, "dry-run", true, "Don't perform destructive actions; show what would be done")
	flag.BoolVar(&opts.Yes, "yes", false, "Confirm destructive action (required to actually truncate)")
	flag.BoolVar(&opts.Reseed, "reseed", false, "After truncation, reseed the demo company and admin user")
	flag.Parse()

	gdb, err := report.OpenDB()
	if err != nil {
		log.Fatal(err)
	}
	if err := sanitize.Run(gdb, opts, os.Stdout); err != nil {
		log.Fatal(err)
	}
}
