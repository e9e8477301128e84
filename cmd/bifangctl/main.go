package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/http_client"
)

var Version = "v0.1.0"

const usage = `bifangctl - operator commands for bifang-scheduler

usage: bifangctl [-addr URL] [-timeout D] <command> [flags]

commands:
  reload                            reload all schedules from the task table
  sync-status  [-dry-run]           re-derive task status from the latest execution
  fix-stuck    [-threshold-minutes N] [-dry-run]
                                    fail executions stuck in running
  schedules    [-fix]               list cron/interval schedules, optionally normalize
  run          -task ID [-user ID]  trigger a task manually
  handle       -id ID               show a transport handle
  execution    -id ID               show one execution
  executions   -task ID [-limit N]  list executions of a task
  plugins                           list registered plugins
  version
`

func main() {
	addr := flag.String("addr", envOr("BIFANG_ADDR", "http://127.0.0.1:8080"), "scheduler base url")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cli := http_client.NewClient("bifangctl", &http_client.HTTPClientConfig{BaseURL: *addr, Timeout: *timeout})
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := dispatch(ctx, cli, flag.Arg(0), flag.Args()[1:]); err != nil {
		var se *http_client.StatusError
		if errors.As(err, &se) {
			fmt.Fprintf(os.Stderr, "server returned %d: %s\n", se.StatusCode, se.Body)
		} else {
			fmt.Fprintf(os.Stderr, "bifangctl: %v\n", err)
		}
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, cli *http_client.InstrumentedClient, cmd string, args []string) error {
	var out json.RawMessage
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)

	switch cmd {
	case "reload":
		_ = fs.Parse(args)
		if _, err := cli.Post(ctx, "/api/v1/ops/reload", nil, nil, &out); err != nil {
			return err
		}
	case "sync-status":
		dry := fs.Bool("dry-run", false, "report only")
		_ = fs.Parse(args)
		path := "/api/v1/ops/sync-status?dry_run=" + strconv.FormatBool(*dry)
		if _, err := cli.Post(ctx, path, nil, nil, &out); err != nil {
			return err
		}
	case "fix-stuck":
		minutes := fs.Int("threshold-minutes", 0, "running longer than this is stuck; 0 uses the server default")
		dry := fs.Bool("dry-run", false, "report only")
		_ = fs.Parse(args)
		body := map[string]any{"threshold_minutes": *minutes, "dry_run": *dry}
		if _, err := cli.Post(ctx, "/api/v1/ops/fix-stuck", body, nil, &out); err != nil {
			return err
		}
	case "schedules":
		fix := fs.Bool("fix", false, "write normalized cron expressions back")
		_ = fs.Parse(args)
		var err error
		if *fix {
			_, err = cli.Post(ctx, "/api/v1/ops/schedules/fix", nil, nil, &out)
		} else {
			_, err = cli.Get(ctx, "/api/v1/ops/schedules", nil, nil, &out)
		}
		if err != nil {
			return err
		}
	case "run":
		task := fs.Int64("task", 0, "task id")
		user := fs.Int64("user", 0, "triggering user id")
		_ = fs.Parse(args)
		if *task <= 0 {
			return errors.New("run: -task is required")
		}
		var headers map[string]string
		if *user > 0 {
			headers = map[string]string{"X-User-ID": strconv.FormatInt(*user, 10)}
		}
		if _, err := cli.Post(ctx, fmt.Sprintf("/api/v1/tasks/%d/run", *task), nil, headers, &out); err != nil {
			return err
		}
	case "handle":
		id := fs.String("id", "", "handle id")
		_ = fs.Parse(args)
		if *id == "" {
			return errors.New("handle: -id is required")
		}
		if _, err := cli.Get(ctx, "/api/v1/handles/"+*id, nil, nil, &out); err != nil {
			return err
		}
	case "execution":
		id := fs.Int64("id", 0, "execution id")
		_ = fs.Parse(args)
		if *id <= 0 {
			return errors.New("execution: -id is required")
		}
		if _, err := cli.Get(ctx, fmt.Sprintf("/api/v1/executions/%d", *id), nil, nil, &out); err != nil {
			return err
		}
	case "executions":
		task := fs.Int64("task", 0, "task id")
		limit := fs.Int("limit", 20, "max rows")
		_ = fs.Parse(args)
		if *task <= 0 {
			return errors.New("executions: -task is required")
		}
		q := map[string]string{"limit": strconv.Itoa(*limit)}
		if _, err := cli.Get(ctx, fmt.Sprintf("/api/v1/tasks/%d/executions", *task), q, nil, &out); err != nil {
			return err
		}
	case "plugins":
		_ = fs.Parse(args)
		if _, err := cli.Get(ctx, "/api/v1/ops/plugins", nil, nil, &out); err != nil {
			return err
		}
	case "version":
		fmt.Println(Version)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return printJSON(out)
}

func printJSON(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		_, err = os.Stdout.Write(raw)
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
