package vault

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/yamnikov-oleg/rooster/internal/audit"
	cr "github.com/yamnikov-oleg/rooster/internal/crypto"
)

type exportMeta struct {
	App       string    `json:"app"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Export writes every entry, passwords in clear text, as a JSON document
// with one entry per line. Passwords are escaped straight from their byte
// slices into a buffer that is wiped after each write, so no immutable copy
// of a password is left behind.
func (v *Vault) Export(w io.Writer) error {
	if !v.open {
		return ErrClosed
	}
	if _, err := io.WriteString(w, `{"entries":[`); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	n := 0
	for e := range v.store.All() {
		err := writeExportEntry(w, e, n > 0)
		e.Wipe()
		if err != nil {
			return fmt.Errorf("export %q: %w", e.App, err)
		}
		n++
	}
	if _, err := io.WriteString(w, "\n]}\n"); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	v.log.Info().Str("path", v.path).Int("entries", n).Msg("vault exported")
	v.audit.Append(audit.VaultExported, v.path)
	return nil
}

func writeExportEntry(w io.Writer, e Entry, comma bool) error {
	meta, err := json.Marshal(exportMeta{
		App:       e.App,
		Username:  e.Username,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	})
	if err != nil {
		return err
	}
	// Sized for the worst-case escape so append never reallocates and
	// strands a copy of the password.
	buf := make([]byte, 0, len(meta)+6*len(e.Password)+32)
	defer func() { cr.Zero(buf[:cap(buf)]) }()

	if comma {
		buf = append(buf, ',')
	}
	buf = append(buf, "\n"...)
	buf = append(buf, `{"password":`...)
	buf = appendJSONString(buf, e.Password)
	buf = append(buf, ',')
	buf = append(buf, meta[1:]...)
	_, err = w.Write(buf)
	return err
}

const hexDigits = "0123456789abcdef"

// appendJSONString appends s as a quoted JSON string. Invalid UTF-8 is
// replaced with U+FFFD the way encoding/json does.
func appendJSONString(dst, s []byte) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch {
			case c == '"' || c == '\\':
				dst = append(dst, '\\', c)
			case c < 0x20 || c == '<' || c == '>' || c == '&':
				dst = append(dst, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
			default:
				dst = append(dst, c)
			}
			i++
			continue
		}
		r, size := utf8.DecodeRune(s[i:])
		if r == utf8.RuneError && size == 1 {
			dst = append(dst, `\ufffd`...)
		} else {
			dst = append(dst, s[i:i+size]...)
		}
		i += size
	}
	return append(dst, '"')
}
