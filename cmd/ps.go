package cmd

import (
	"context"
	"fmt"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// psCmd is a standalone client: it never touches a core.Registry directly,
// only the admin gRPC surface a running node exposes, so it works against a
// node on a different host just as well as one on localhost.
func psCmd() *cli.Command {
	return &cli.Command{
		Name:  "ps",
		Usage: "Watch a service's STAT output live",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "admin-addr",
				Value: "127.0.0.1:7000",
				Usage: "Admin gRPC address of the running node",
			},
			&cli.StringFlag{
				Name:     "target",
				Required: true,
				Usage:    "Handle (:xxxxxx) or registered name of the service to watch",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Value: time.Second,
				Usage: "Poll interval",
			},
		},
		Action: func(c *cli.Context) error {
			return runPS(c.Context, c.String("admin-addr"), c.String("target"), c.Duration("interval"))
		},
	}
}

func runPS(ctx context.Context, adminAddr, target string, interval time.Duration) error {
	conn, err := grpc.NewClient(adminAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("ps: dial %s: %w", adminAddr, err)
	}
	defer conn.Close()

	if err := ui.Init(); err != nil {
		return fmt.Errorf("ps: init terminal: %w", err)
	}
	defer ui.Close()

	p := widgets.NewParagraph()
	p.Title = fmt.Sprintf("stat %s (q to quit)", target)
	w, h := ui.TerminalDimensions()
	p.SetRect(0, 0, w, h)
	ui.Render(p)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()
	refresh := func() {
		stat, err := statOnce(ctx, conn, target)
		if err != nil {
			p.Text = fmt.Sprintf("error: %v", err)
		} else {
			p.Text = stat
		}
		ui.Render(p)
	}
	refresh()

	for {
		select {
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "<Resize>":
				w, h := ui.TerminalDimensions()
				p.SetRect(0, 0, w, h)
				ui.Render(p)
			}
		case <-ticker.C:
			refresh()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func statOnce(ctx context.Context, conn *grpc.ClientConn, target string) (string, error) {
	req, err := structpb.NewStruct(map[string]any{"target": target})
	if err != nil {
		return "", err
	}
	reply := &structpb.Struct{}
	if err := conn.Invoke(ctx, "/actor.AdminService/Stat", req, reply); err != nil {
		return "", err
	}
	if v, ok := reply.Fields["error"]; ok {
		return "", fmt.Errorf("%s", v.GetStringValue())
	}
	return reply.Fields["result"].GetStringValue(), nil
}
