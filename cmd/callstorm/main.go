// callstorm is the command-line control for a running callstorm-d.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/callstorm/callstorm/pkg/api"
	"github.com/callstorm/callstorm/pkg/client"
)

var (
	Version   = "v1.0.0"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const usage = `Usage: callstorm <command> [args]

Commands:
  status                  show the engine snapshot
  start                   arm the traffic generator
  stop                    stop offering new calls
  hupall [all]            hang up sessions ('all' includes foreign ones)
  shutdown                retire the engine
  set <field> <value>     adjust a setting (rate, limit, duration, max-offered)
  summary                 show the CDR roll-up
  version                 print build info

Environment:
  CALLSTORM_ENDPOINT      daemon address (default http://127.0.0.1:8090)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	c := client.NewClient(os.Getenv("CALLSTORM_ENDPOINT"))
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "status":
		err = showStatus(ctx, c)
	case "start":
		err = c.Start(ctx)
	case "stop":
		err = c.Stop(ctx)
	case "hupall":
		everything := len(os.Args) > 2 && os.Args[2] == "all"
		err = c.HupAll(ctx, everything)
	case "shutdown":
		err = c.Shutdown(ctx)
	case "set":
		err = setField(ctx, c, os.Args[2:])
	case "summary":
		err = showSummary(ctx, c)
	case "version":
		fmt.Printf("callstorm %s (%s, built %s)\n", Version, Commit, BuildTime)
		return
	default:
		fmt.Print(usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Is callstorm-d running?")
		os.Exit(1)
	}
}

func showStatus(ctx context.Context, c *client.Client) error {
	st, err := c.Status(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func showSummary(ctx context.Context, c *client.Client) error {
	sum, err := c.Summary(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func setField(ctx context.Context, c *client.Client, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: callstorm set <field> <value>")
	}
	field, value := args[0], args[1]

	var req api.ConfigRequest
	switch field {
	case "rate":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid rate: %w", err)
		}
		req.Rate = &v
	case "limit":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}
		req.Limit = &v
	case "duration":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		secs := d.Seconds()
		req.DurationS = &secs
	case "max-offered":
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid max-offered: %w", err)
		}
		req.MaxOffered = &v
	default:
		return fmt.Errorf("unknown field %q (want rate, limit, duration or max-offered)", field)
	}

	st, err := c.Configure(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("Applied. rate=%.1f limit=%d duration=%.1fs max_offered=%d\n",
		st.Rate, st.Limit, st.DurationS, st.MaxOffered)
	return nil
}
