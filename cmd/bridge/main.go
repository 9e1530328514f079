package main

import (
	"context"
	"time"

	"uartbridge-go/identity"
	"uartbridge-go/platform"
	"uartbridge-go/serialmux"
	"uartbridge-go/services/heartbeat"
	"uartbridge-go/services/hostlink"
	"uartbridge-go/services/ingest"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	ctx := context.Background()
	start := time.Now()

	dev, err := platform.Init(platform.DefaultConfig())
	if err != nil {
		println("[main] platform init failed:", err.Error())
		return
	}

	id, err := identity.Derive(dev.UID)
	if err != nil {
		// No unique id means no usable device serial; refuse to run.
		println("[main] identity read failed:", err.Error())
		return
	}
	println("[main] serial", id.String())

	mux := serialmux.New(dev.Serial)

	disp := hostlink.NewDispatcher()
	srv := hostlink.New(id.String(), dev.Link, disp)

	in := ingest.New(ingest.Config{
		Serial: mux,
		Out:    srv.Sender(),
		Topic:  hostlink.TopicUartRx,
	})

	console := &hostlink.Console{Ident: id, Start: start, Serial: mux, Seq: in.Seq}
	console.Register(disp)
	hb := heartbeat.New(heartbeat.Config{
		Out:   srv.Sender(),
		Topic: hostlink.TopicLog,
		Start: start,
	})

	println("[main] starting tasks …")
	go in.Run(ctx)
	go dev.Link.Pump(ctx)
	go hb.Run(ctx)

	srv.Serve(ctx)
}
