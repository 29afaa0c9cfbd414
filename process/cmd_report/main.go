package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"expensemgr/process/report"
)

func main() {
	email := flag.String("email", "admin@example.com", "user email to report for")
	month := flag.String("month", time.Now().UTC().Format("2006-01"), "month to report (YYYY-MM)")
	list := flag.Bool("list", false, "list matching rows")
	flag.Parse()

	gdb, err := report.OpenDB()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := report.RunReport(gdb, os.Stdout, *email, *month, *list); err != nil {
		log.Fatalf("report: %v", err)
	}
}
