// Command connectorctl is a thin admin client for connectord, following
// lncli's command-per-subcommand urfave/cli structure but speaking the
// daemon's JSON admin API instead of a gRPC control plane.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli"
)

var adminAddrFlag = cli.StringFlag{
	Name:  "rpcserver",
	Value: "127.0.0.1:9090",
	Usage: "host:port of the connectord admin API",
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[connectorctl] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = "connectorctl"
	app.Usage = "admin client for connectord"
	app.Flags = []cli.Flag{adminAddrFlag}
	app.Commands = []cli.Command{
		statusCommand,
		peersCommand,
		channelsCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func adminClient(ctx *cli.Context) *adminHTTPClient {
	return &adminHTTPClient{
		base:   "http://" + ctx.GlobalString("rpcserver"),
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

type adminHTTPClient struct {
	base   string
	client *http.Client
}

func (c *adminHTTPClient) getJSON(path string, out any) error {
	resp, err := c.client.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: unexpected status %d: %s", path, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var statusCommand = cli.Command{
	Name:  "status",
	Usage: "show daemon status",
	Action: func(ctx *cli.Context) error {
		var status map[string]any
		if err := adminClient(ctx).getJSON("/admin/status", &status); err != nil {
			return err
		}
		return printJSON(status)
	},
}

var peersCommand = cli.Command{
	Name:  "peers",
	Usage: "list the discovery directory",
	Action: func(ctx *cli.Context) error {
		var peers []any
		if err := adminClient(ctx).getJSON("/admin/peers", &peers); err != nil {
			return err
		}
		return printJSON(peers)
	},
}

var channelsCommand = cli.Command{
	Name:  "channels",
	Usage: "list known peerId -> channelId mappings",
	Action: func(ctx *cli.Context) error {
		var channels map[string]string
		if err := adminClient(ctx).getJSON("/admin/channels", &channels); err != nil {
			return err
		}
		return printJSON(channels)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
