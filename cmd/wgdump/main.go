// Command wgdump prints the configuration of every WireGuard interface the
// configured backend can see. It takes no arguments: WGBIND_CONFIG names an
// optional config file and WGBIND_* / LOGGING_* variables override it.
package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/irctrakz/wgbind/pkg/backend"
	"github.com/irctrakz/wgbind/pkg/config"
	"github.com/irctrakz/wgbind/pkg/device"
	"github.com/irctrakz/wgbind/pkg/keys"
	"github.com/irctrakz/wgbind/pkg/lifecycle"
	"github.com/irctrakz/wgbind/pkg/logging"
	"github.com/irctrakz/wgbind/pkg/raw"
)

// demoName is created on the userspace backend, whose devices live only
// inside this process.
const demoName = "wgdump0"

func main() {
	if err := run(os.Stdout); err != nil {
		logging.Errorf("wgdump: %v", err)
		os.Exit(1)
	}
}

func run(out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.ApplyLogging(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	b, err := backend.Open(cfg.Backend)
	if err != nil {
		return fmt.Errorf("backend %s: %w", cfg.Backend.Kind, err)
	}
	defer b.Close()

	if cfg.Backend.Kind == config.KindUserspace {
		demo, err := createDemo(b)
		if err != nil {
			return fmt.Errorf("demo interface: %w", err)
		}
		defer demo.RemoveInterface()
	}

	names, err := device.ListNamesLimit(b, cfg.Backend.ScanLimit)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	if len(names) == 0 {
		fmt.Fprintln(out, "no WireGuard interfaces")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tIFINDEX\tLISTEN PORT\tFWMARK\tPUBLIC KEY\tFLAGS")
	for _, name := range names {
		if err := dumpOne(tw, b, name); err != nil {
			logging.Warnf("skipping %s: %v", name, err)
		}
	}
	return tw.Flush()
}

// createDemo brings up a throwaway interface with a fresh key and a random
// listen port.
func createDemo(s raw.Surface) (*lifecycle.Interface, error) {
	iface := lifecycle.New(s)
	if err := iface.CreateInterface(demoName); err != nil {
		return nil, err
	}
	priv, err := keys.GeneratePrivate()
	if err != nil {
		iface.RemoveInterface()
		return nil, err
	}
	if err := iface.SetPrivateKey(priv); err != nil {
		iface.RemoveInterface()
		return nil, err
	}
	if err := iface.UpdateDevice(); err != nil {
		iface.RemoveInterface()
		return nil, err
	}
	return iface, nil
}

func dumpOne(w io.Writer, s raw.Surface, name string) error {
	iface := lifecycle.New(s)
	if err := iface.Attach(name); err != nil {
		return err
	}
	defer iface.Close()
	h := iface.Handle()

	ifindex, err := h.IfIndex()
	if err != nil {
		return err
	}
	port, err := h.ListenPort()
	if err != nil {
		return err
	}
	mark, err := h.Fwmark()
	if err != nil {
		return err
	}
	flags, err := h.Flags()
	if err != nil {
		return err
	}
	pub := "(none)"
	if k, ok, err := h.PublicKeyBytes(); err != nil {
		return err
	} else if ok {
		pub = k.String()
	}
	fmt.Fprintf(w, "%s\t%d\t%d\t%#x\t%s\t%s\n", name, ifindex, port, mark, pub, flags)
	return nil
}
