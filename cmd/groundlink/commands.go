package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/muurk/groundlink/internal/discovery"
	"github.com/muurk/groundlink/internal/iface"
	"github.com/muurk/groundlink/internal/protocol"
	"github.com/muurk/groundlink/internal/sink"
	"github.com/muurk/groundlink/internal/stream"
	"github.com/muurk/groundlink/internal/ui"
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(cvtCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// runCmd runs configured links until interrupted
var runCmd = &cobra.Command{
	Use:   "run [name...]",
	Short: "Run interfaces and listeners",
	Long: `Run the interfaces and listeners from the config file.

Every packet read is published to the configured sinks (NATS, Redis
current-value table, capture file). With nats.commands enabled, commands
published on <prefix>.cmd.<name> are written to the named link.

Without arguments every interface and listener runs.`,
	Example: `  # Run everything in the default config
  groundlink run

  # Run one interface with debug logging
  groundlink run RADIO --log-level debug

  # Use a specific config file
  groundlink run -c /etc/groundlink/config.toml`,
	RunE: runLinks,
}

func runLinks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	sess, err := buildSession(ctx, cfg, sessionOptions{Names: args})
	if err != nil {
		return err
	}
	return sess.Run(ctx)
}

// monitorCmd shows live traffic
var monitorCmd = &cobra.Command{
	Use:   "monitor [name...]",
	Short: "Show live packets in the terminal",
	Long: `Run links like 'run' and show every packet in a live terminal view,
together with link state, counters and discard events.

When stdout is not a terminal packets are printed one per line instead.`,
	Example: `  # Watch everything
  groundlink monitor

  # Watch one interface without publishing to NATS/Redis
  groundlink monitor RADIO --local`,
	RunE: runMonitor,
}

var monitorLocal bool

func init() {
	monitorCmd.Flags().BoolVar(&monitorLocal, "local", false, "Do not publish to the configured NATS, Redis and capture sinks")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if !ui.IsTerminal() {
		printer := ui.NewPrinter(cmd.OutOrStdout())
		lines := sink.Func(func(_ context.Context, rec sink.Record) error {
			printer.Println(ui.FormatRecord(rec))
			return nil
		})
		sess, err := buildSession(ctx, cfg, sessionOptions{Names: args, Sinks: []sink.Sink{lines}, NoRemoteSinks: monitorLocal})
		if err != nil {
			return err
		}
		return sess.Run(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mon := ui.NewMonitor(ctx, "groundlink monitor")
	monErr := make(chan error, 1)
	go func() {
		monErr <- mon.Run()
		cancel()
	}()

	sess, err := buildSession(ctx, cfg, sessionOptions{
		Names:         args,
		Sinks:         []sink.Sink{mon},
		Reporter:      mon.Reporter,
		NoRemoteSinks: monitorLocal,
	})
	if err != nil {
		cancel()
		<-monErr
		return err
	}

	go mon.PollStats(ctx, 500*time.Millisecond, sess.interfaces...)

	runErr := sess.Run(ctx)
	cancel()
	return errors.Join(runErr, <-monErr)
}

// sendCmd writes one command packet
var sendCmd = &cobra.Command{
	Use:   "send <name> <hex>",
	Short: "Send a command packet",
	Long: `Write one packet through a link's protocol chain.

By default the named interface is opened directly, so it must not be in use
by a running groundlink. With --nats the command is handed to a running
groundlink over NATS instead (requires nats.commands in its config); this
also reaches devices connected to a listener.`,
	Example: `  # Open RADIO and send a packet; the chain fills in the sync pattern
  groundlink send RADIO 0x000000000102AABB --packet PING

  # Ask the running service to send it
  groundlink send RADIO 0102AABB --nats`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

var (
	sendPacket  string
	sendTarget  string
	sendViaNATS bool
	sendTimeout time.Duration
)

func init() {
	sendCmd.Flags().StringVar(&sendPacket, "packet", "COMMAND", "Packet name")
	sendCmd.Flags().StringVar(&sendTarget, "target", "", "Target name (default: the link's target)")
	sendCmd.Flags().BoolVar(&sendViaNATS, "nats", false, "Send through a running groundlink over NATS")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 10*time.Second, "Connect and reply timeout")
}

func runSend(cmd *cobra.Command, args []string) error {
	name, payload := args[0], args[1]
	printer := ui.NewPrinter(cmd.OutOrStdout())

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	command := sink.Command{Target: sendTarget, Packet: sendPacket, Hex: payload}

	if sendViaNATS {
		if cfg.NATS == nil {
			return errors.New("--nats needs a nats section in the config")
		}
		nc, err := sink.ConnectNATS(cfg.NATS.URL, "groundlink-send")
		if err != nil {
			return err
		}
		defer nc.Close()

		reply, err := requestCommand(nc, cfg.NATS.Prefix, name, command, sendTimeout)
		if err != nil {
			printer.PrintError("Command not sent", err,
				"Check that groundlink is running with nats.commands enabled",
				"Check that "+name+" is connected")
			return err
		}
		printer.PrintSuccess("Command sent", ui.Param{Key: "Link", Value: name}, ui.Param{Key: "Reply", Value: reply})
		return nil
	}

	def := cfg.GetInterface(name)
	if def == nil {
		return fmt.Errorf("no interface named %q (listeners need --nats)", name)
	}
	pkt, err := command.ToPacket(def.Target)
	if err != nil {
		return err
	}
	sentLen := pkt.Len()

	ic, err := def.IfaceConfig()
	if err != nil {
		return err
	}
	st, err := stream.New(def.StreamConfig())
	if err != nil {
		return err
	}
	itf, err := iface.New(ic, st)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
	defer cancel()

	if err := itf.Connect(ctx); err != nil {
		printer.PrintError("Connect failed", err, "Check the stream address in the config", "Stop any running groundlink using "+name)
		return err
	}
	defer itf.Disconnect()

	if err := itf.WritePacket(ctx, pkt); err != nil {
		printer.PrintError("Send failed", err)
		return err
	}

	printer.PrintSuccess("Packet sent",
		ui.Param{Key: "Interface", Value: name},
		ui.Param{Key: "Packet", Value: pkt.Target + "/" + pkt.Name},
		ui.Param{Key: "Payload", Value: fmt.Sprintf("%d bytes", sentLen)},
		ui.Param{Key: "On wire", Value: fmt.Sprintf("%d bytes", itf.Stats().BytesWritten)},
	)
	return nil
}

// natsRequester is the part of *nats.Conn used by send --nats.
type natsRequester interface {
	Request(subj string, data []byte, timeout time.Duration) (*nats.Msg, error)
}

// requestCommand publishes command and waits for the service's reply.
func requestCommand(nc natsRequester, prefix, name string, command sink.Command, timeout time.Duration) (string, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return "", err
	}
	msg, err := nc.Request(sink.CommandSubject(prefix, name), body, timeout)
	if err != nil {
		return "", fmt.Errorf("no reply on %s: %w", sink.CommandSubject(prefix, name), err)
	}

	var reply map[string]string
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return "", fmt.Errorf("invalid reply: %w", err)
	}
	if e, ok := reply["error"]; ok {
		return "", errors.New(e)
	}
	return reply["status"], nil
}

// discoverCmd browses for advertised listeners
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find groundlink listeners on the network",
	Long: `Browse mDNS for groundlink listeners started with advertise enabled.

With --wait, block until a listener for the named interface appears and
print only its address, for use in scripts.`,
	Example: `  # Scan for the configured discovery timeout
  groundlink discover

  # Quick scan
  groundlink discover --timeout 3s

  # Print the address of the BENCH listener
  groundlink discover --wait BENCH`,
	RunE: runDiscover,
}

var (
	discoverTimeout time.Duration
	discoverWait    string
)

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", discovery.DefaultScanTimeout, "Scan timeout")
	discoverCmd.Flags().StringVar(&discoverWait, "wait", "", "Wait for the named interface and print its address")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	scanner := discovery.NewScanner()
	scanner.Timeout = discoverTimeout

	if discoverWait != "" {
		ep, err := scanner.WaitForInterface(ctx, discoverWait)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ep.Address())
		return nil
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	printer.Printf("Scanning for groundlink listeners (timeout: %s)...\n\n", discoverTimeout)

	endpoints, err := scanner.ScanWithContext(ctx)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(endpoints) == 0 {
		printer.PrintWarning("No listeners found", ui.Param{Key: "Timeout", Value: discoverTimeout.String()})
		return nil
	}

	result := ui.NewSuccessResult(fmt.Sprintf("Found %d listener(s)", len(endpoints))).SetWidth(printer.Width())
	for _, ep := range endpoints {
		name := ep.Interface
		if name == "" {
			name = ep.Instance
		}
		detail := ep.Address()
		if kind := ep.GetMetadata(discovery.TxtKind); kind != "" {
			detail += " " + kind
		}
		if ep.Target != "" {
			detail += " target=" + ep.Target
		}
		if v := ep.GetMetadata(discovery.TxtVersion); v != "" {
			detail += " v" + v
		}
		result.AddDetail(name, detail)
	}
	printer.Println(result.Render())
	return nil
}

// portsCmd lists serial ports
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := stream.Ports()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found.")
			return nil
		}
		for _, p := range ports {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

// cvtCmd reads the current-value table
var cvtCmd = &cobra.Command{
	Use:   "cvt <target> <packet>",
	Short: "Show the latest value of a packet from Redis",
	Args:  cobra.ExactArgs(2),
	RunE:  runCVT,
}

func runCVT(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if cfg.Redis == nil {
		return errors.New("no redis section in the config")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	client, err := sink.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	cvt := sink.NewCVT(client)
	defer cvt.Close()

	latest, err := cvt.Latest(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess(strings.ToUpper(args[0]+" "+args[1]),
		ui.Param{Key: "Received", Value: latest.ReceivedAt.Format(time.RFC3339Nano)},
		ui.Param{Key: "Count", Value: fmt.Sprintf("%d", latest.Count)},
		ui.Param{Key: "Length", Value: fmt.Sprintf("%d", len(latest.Data))},
		ui.Param{Key: "Data", Value: protocol.FormatSyncPattern(latest.Data)},
	)
	return nil
}
