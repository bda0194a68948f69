// Package ui provides terminal output for the groundlink CLI.
//
// One-shot commands (send, discover, config init) print a Header and a
// Result box through a Printer. The monitor command runs Monitor, a Bubble
// Tea program showing link state, discard events and a scrolling packet
// table.
//
// Monitor implements sink.Sink, so it is added to the same sink.Multi as
// NATS, Redis and the capture file:
//
//	mon := ui.NewMonitor(ctx, "groundlink monitor")
//	go func() { errc <- mon.Run() }()
//	sinks := sink.NewMulti(mon, natsSink)
//
// Zap logging shares the terminal and would tear the monitor's frame, so the
// monitor command ignores the config file's log_level. Only --log-level or
// GROUNDLINK_LOG_LEVEL turn it on.
package ui
