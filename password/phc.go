package password

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2idPrefix = "$argon2id$"

// phc is a decoded $argon2id$ string.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key))
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformedHash}, args...)...)
}

// decodePHC parses encoded. Padded and unpadded base64 are both accepted.
func decodePHC(encoded string) (phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return phc{}, malformed("expected 5 fields")
	}
	if parts[1] != "argon2id" {
		return phc{}, malformed("unsupported algorithm %q", parts[1])
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return phc{}, malformed("missing version")
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return phc{}, malformed("unsupported version %q", version)
	}

	var p phc
	if err := p.decodeParams(parts[3]); err != nil {
		return phc{}, err
	}

	var err error
	if p.salt, err = decodeB64(parts[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return phc{}, malformed("bad salt")
	}
	if p.key, err = decodeB64(parts[5]); err != nil || len(p.key) == 0 {
		return phc{}, malformed("bad key")
	}
	return p, nil
}

func (p *phc) decodeParams(field string) error {
	seen := map[string]bool{}
	for _, pair := range strings.Split(field, ",") {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || seen[name] {
			return malformed("bad parameter %q", pair)
		}
		seen[name] = true

		bits := 32
		if name == "p" {
			bits = 8
		}
		v, err := strconv.ParseUint(raw, 10, bits)
		if err != nil {
			return malformed("bad parameter %q", pair)
		}

		switch name {
		case "m":
			if v < uint64(minMemoryKB) {
				return malformed("memory below %d KiB", minMemoryKB)
			}
			p.memory = uint32(v)
		case "t":
			if v < uint64(minTimeCost) {
				return malformed("time cost below %d", minTimeCost)
			}
			p.time = uint32(v)
		case "p":
			if v < uint64(minParallelism) {
				return malformed("parallelism below %d", minParallelism)
			}
			p.parallelism = uint8(v)
		default:
			return malformed("unknown parameter %q", name)
		}
	}
	if len(seen) != 3 {
		return malformed("expected m, t and p")
	}
	return nil
}

func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
