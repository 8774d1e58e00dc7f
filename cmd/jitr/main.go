package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/jitr/cmd/jitr/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug     bool `help:"Enable debug mode."`
		Version   kong.VersionFlag
		Server    commands.ServerCmd    `cmd:"" help:"Serve CA registration and device activation over HTTP"`
		Activator commands.ActivatorCmd `cmd:"" help:"Activate devices from the SQS notification queue"`
		Lambda    commands.LambdaCmd    `cmd:"" help:"Run a pipeline as an AWS Lambda function"`
		Bootstrap commands.BootstrapCmd `cmd:"" help:"Create the bucket, queue and journal table"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("jitr"),
		kong.Description("Just-in-time registration for IoT device certificates."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
