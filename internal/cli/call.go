package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/cardflow/pkg/transport"
)

// CallOptions holds flags for the call command.
type CallOptions struct {
	*RootOptions
	Timeout time.Duration
}

// NewCallCommand creates the call command.
func NewCallCommand(root *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "call <domain> [file]",
		Short: "Send a request context to a running executor",
		Long: `Send a JSON request context to the executor serving <domain> and print
the context it returns. The context is read from file, or from stdin when
file is omitted or "-".

Example:
  echo '{"operation":"get","mode":"stub","stubCase":"success"}' | cardflow call cards`,
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: Domains,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 2 && args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runCall(cmd, opts, args[0], in)
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "per-attempt reply timeout (default transport.timeout)")

	return cmd
}

func runCall(cmd *cobra.Command, opts *CallOptions, domain string, in io.Reader) error {
	if !slices.Contains(Domains, domain) {
		return fmt.Errorf("unknown domain %q: must be one of %v", domain, Domains)
	}

	body, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	if !json.Valid(body) {
		return fmt.Errorf("request for %s is not a JSON document", domain)
	}

	cfg, logger, err := opts.load(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	rdb := newRedisClient(cfg.Redis)
	defer func() { _ = rdb.Close() }()
	bus, err := newBus(rdb, cfg.Redis)
	if err != nil {
		return err
	}

	timeout := cfg.Transport.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	client, err := transport.NewClient(bus, transport.Config{
		MaxAttempts: cfg.Transport.MaxAttempts,
		BaseDelay:   cfg.Transport.BaseDelay,
		Timeout:     timeout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	reply, err := client.Send(cmd.Context(), domain, body)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, reply, "", "  "); err != nil {
		return fmt.Errorf("reply from %s: %w", domain, err)
	}
	out.WriteByte('\n')
	_, err = cmd.OutOrStdout().Write(out.Bytes())
	return err
}
