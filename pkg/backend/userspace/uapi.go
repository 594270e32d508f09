package userspace

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/irctrakz/wgbind/pkg/keys"
	"github.com/irctrakz/wgbind/pkg/raw"
)

// interfaceState is the interface section of a UAPI get response.
type interfaceState struct {
	privateKey raw.Key
	hasKey     bool
	listenPort uint16
	fwmark     uint32
}

// parseInterface reads the interface section of IpcGet output. It stops at
// the first peer section.
func parseInterface(text string) (interfaceState, error) {
	var st interfaceState
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return st, fmt.Errorf("uapi: malformed line %q", line)
		}
		switch key {
		case "public_key":
			return st, nil
		case "private_key":
			b, err := hex.DecodeString(value)
			if err != nil || len(b) != raw.KeyLen {
				return st, fmt.Errorf("uapi: invalid private_key")
			}
			copy(st.privateKey[:], b)
			st.hasKey = !st.privateKey.IsZero()
		case "listen_port":
			v, err := strconv.ParseUint(value, 10, 16)
			if err != nil {
				return st, fmt.Errorf("uapi: listen_port: %w", err)
			}
			st.listenPort = uint16(v)
		case "fwmark":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return st, fmt.Errorf("uapi: fwmark: %w", err)
			}
			st.fwmark = uint32(v)
		}
	}
	return st, sc.Err()
}

// fill copies st into rec and sets the matching flags.
func (st interfaceState) fill(rec *raw.Device) {
	rec.ListenPort = st.listenPort
	rec.Fwmark = st.fwmark
	if st.listenPort != 0 {
		rec.Flags |= raw.FlagHasListenPort
	}
	if st.fwmark != 0 {
		rec.Flags |= raw.FlagHasFwmark
	}
	if st.hasKey {
		rec.PrivateKey = st.privateKey
		rec.PublicKey = keys.Public(st.privateKey)
		rec.Flags |= raw.FlagHasPrivateKey | raw.FlagHasPublicKey
	}
}

// formatSet renders the fields of dev selected by its flags as a UAPI set
// request body.
func formatSet(dev *raw.Device) string {
	var b strings.Builder
	if dev.Flags.Has(raw.FlagHasPrivateKey) {
		fmt.Fprintf(&b, "private_key=%s\n", hex.EncodeToString(dev.PrivateKey[:]))
	}
	if dev.Flags.Has(raw.FlagHasListenPort) {
		fmt.Fprintf(&b, "listen_port=%d\n", dev.ListenPort)
	}
	if dev.Flags.Has(raw.FlagHasFwmark) {
		fmt.Fprintf(&b, "fwmark=%d\n", dev.Fwmark)
	}
	if dev.Flags.Has(raw.FlagReplacePeers) {
		b.WriteString("replace_peers=true\n")
	}
	return b.String()
}

// maskKey hides all but the last six hex digits of a private key line.
func maskKey(conf string) string {
	lines := strings.Split(conf, "\n")
	for i, l := range lines {
		if v, ok := strings.CutPrefix(l, "private_key="); ok && len(v) > 6 {
			lines[i] = "private_key=" + strings.Repeat("*", len(v)-6) + v[len(v)-6:]
		}
	}
	return strings.Join(lines, "\n")
}
