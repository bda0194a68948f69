package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/groundlink/internal/iface"
	"github.com/muurk/groundlink/internal/protocol"
	"github.com/muurk/groundlink/internal/server"
	"github.com/muurk/groundlink/internal/sink"
	"github.com/muurk/groundlink/internal/stream"
	"github.com/muurk/groundlink/internal/ui"
)

// listenCmd starts an ad-hoc listener without a config file
var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Accept device connections and print their packets",
	Long: `Start a listener from flags alone and print every packet received.

Each accepted connection gets its own protocol chain, so a partial frame on
one device never mixes with another. Protocols are given as
name:arg,arg,... in read order, the same arguments as in the config file.`,
	Example: `  # Frame on the CCSDS sync marker, dropping it from the payload
  groundlink listen --port 7779 --protocol stream:4,0x1ACFFC1D

  # WebSocket listener advertised over mDNS, capturing to ./captures
  groundlink listen --kind websocket --path /link --advertise --capture ./captures

  # TLS
  groundlink listen --cert cert.pem --key key.pem`,
	RunE: runListen,
}

var (
	listenName      string
	listenHost      string
	listenPort      int
	listenKind      string
	listenPath      string
	listenCert      string
	listenKey       string
	listenAdvertise bool
	listenProtocols []string
	listenCapture   string
)

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().StringVar(&listenName, "name", "DEVICE", "Interface name used for logging and packet records")
	listenCmd.Flags().StringVar(&listenHost, "host", "", "Listen address (empty = all interfaces)")
	listenCmd.Flags().IntVar(&listenPort, "port", 7779, "Listen port")
	listenCmd.Flags().StringVar(&listenKind, "kind", "tcp", "Listener kind (tcp, websocket)")
	listenCmd.Flags().StringVar(&listenPath, "path", "/", "WebSocket path")
	listenCmd.Flags().StringVar(&listenCert, "cert", "", "Path to TLS certificate file")
	listenCmd.Flags().StringVar(&listenKey, "key", "", "Path to TLS private key file")
	listenCmd.Flags().BoolVar(&listenAdvertise, "advertise", false, "Advertise the listener over mDNS")
	listenCmd.Flags().StringArrayVar(&listenProtocols, "protocol", nil, "Protocol as name:arg,arg (repeatable, read order)")
	listenCmd.Flags().StringVar(&listenCapture, "capture", "", "Directory to write a JSON-lines packet capture")
}

func runListen(cmd *cobra.Command, args []string) error {
	if (listenCert == "") != (listenKey == "") {
		return fmt.Errorf("both --cert and --key must be provided together")
	}

	specs, err := parseProtocolFlags(listenProtocols)
	if err != nil {
		return err
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	sinks := []sink.Sink{
		sink.Log(),
		sink.Func(func(_ context.Context, rec sink.Record) error {
			printer.Println(ui.FormatRecord(rec))
			return nil
		}),
	}
	if listenCapture != "" {
		capture, err := sink.NewCapture(listenCapture)
		if err != nil {
			return err
		}
		sinks = append(sinks, capture)
	}
	out := sink.NewMulti(sinks...)
	defer out.Close()

	srv, err := server.New(&server.Config{
		Host:      listenHost,
		Port:      listenPort,
		Kind:      stream.Kind(listenKind),
		Path:      listenPath,
		CertPath:  listenCert,
		KeyPath:   listenKey,
		Advertise: listenAdvertise,
		Interface: iface.Config{
			Name:      listenName,
			Protocols: specs,
		},
	}, out.Handler(listenName, sink.DirectionRead))
	if err != nil {
		return err
	}

	if err := srv.Listen(); err != nil {
		return err
	}

	params := []ui.Param{
		{Key: "Address", Value: srv.Addr().String()},
		{Key: "Kind", Value: listenKind},
		{Key: "Chain", Value: describeChain(specs)},
		{Key: "TLS", Value: strconv.FormatBool(listenCert != "")},
	}
	if listenAdvertise {
		params = append(params, ui.Param{Key: "mDNS", Value: "advertised"})
	}
	printer.PrintHeader("Listening", "groundlink listen", params...)

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	return srv.Serve(ctx)
}

// parseProtocolFlags parses --protocol values such as "stream:4,0x1ACF,true".
func parseProtocolFlags(values []string) ([]protocol.Spec, error) {
	specs := make([]protocol.Spec, 0, len(values))
	for _, v := range values {
		name, rest, _ := strings.Cut(v, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid --protocol %q: missing name", v)
		}
		var args []string
		if rest != "" {
			args = strings.Split(rest, ",")
			for i := range args {
				args[i] = strings.TrimSpace(args[i])
			}
		}
		specs = append(specs, protocol.Spec{Name: name, Args: args})
	}
	return specs, nil
}

func describeChain(specs []protocol.Spec) string {
	if len(specs) == 0 {
		return "(raw, one packet per read)"
	}
	parts := make([]string, len(specs))
	for i, s := range specs {
		parts[i] = s.Name
		if len(s.Args) > 0 {
			parts[i] += "(" + strings.Join(s.Args, ", ") + ")"
		}
	}
	return strings.Join(parts, " → ")
}
