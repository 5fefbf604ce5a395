// Command loggen writes a synthetic access log for trying out sessionize.
//
//	loggen [flags] <output|->
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/agent-racer/sessionizer/internal/config"
	"github.com/agent-racer/sessionizer/internal/mock"
)

const usage = "usage: loggen [flags] <output|->"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("loggen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		seed          = fs.Int64("seed", 1, "Random seed")
		lines         = fs.Int("lines", 1000, "Number of log lines after the header")
		ips           = fs.Int("ips", 40, "Number of distinct client IPs")
		maxStep       = fs.Duration("max-step", 3*time.Second, "Largest gap between consecutive lines")
		start         = fs.String("start", "2017-06-30 00:00:00", "Timestamp of the first line (UTC)")
		malformed     = fs.Float64("malformed", 0, "Share of malformed lines (0-1)")
		backdated     = fs.Float64("backdated", 0, "Share of backdated lines (0-1)")
		inactivity    = fs.Int("inactivity", 2, "Inactivity period written with -inactivity-out")
		inactivityOut = fs.String("inactivity-out", "", "Also write an inactivity period file here")
	)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New(usage)
	}
	if *malformed < 0 || *backdated < 0 || *malformed+*backdated > 1 {
		return fmt.Errorf("malformed and backdated shares must be within 0-1 combined")
	}
	startAt, err := time.ParseInLocation("2006-01-02 15:04:05", *start, time.UTC)
	if err != nil {
		return fmt.Errorf("parse -start: %w", err)
	}

	if *inactivityOut != "" {
		if _, err := config.ParseInactivity(strconv.Itoa(*inactivity)); err != nil {
			return err
		}
		if err := os.WriteFile(*inactivityOut, []byte(strconv.Itoa(*inactivity)+"\n"), 0o644); err != nil {
			return fmt.Errorf("write inactivity file: %w", err)
		}
	}

	gen := mock.NewGenerator(mock.Options{
		Seed:          *seed,
		Start:         startAt,
		Lines:         *lines,
		IPs:           *ips,
		MaxStep:       *maxStep,
		MalformedRate: *malformed,
		BackdateRate:  *backdated,
	})

	w := stdout
	if path := fs.Arg(0); path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create log: %w", err)
		}
		defer f.Close()
		w = f
	}

	counts, err := gen.WriteLog(w)
	if err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	fmt.Fprintf(stderr, "wrote %d lines (%d valid, %d malformed, %d backdated)\n",
		counts.Total(), counts.Valid, counts.Malformed, counts.Backdated)
	return nil
}
