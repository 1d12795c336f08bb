package main

import (
	"context"

	"github.com/fatih/color"

	"github.com/xhad/solar/server"
)

func runServe(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("serve", "[-addr host:port]")
	addr := fs.String("addr", a.config.Server.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:   *addr,
		Logger: a.logger,
	}, a.service, a.client, a.registry)

	color.Green("Listening on %s\n", *addr)
	return srv.ListenAndServe(ctx)
}
