package wine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/rsjfw/rsjfw/internal/apperr"
)

// Registry value types accepted by reg add.
const (
	RegSZ     = "REG_SZ"
	RegDWORD  = "REG_DWORD"
	RegBinary = "REG_BINARY"
)

// RegistryAdd writes one value with reg add. An empty name writes the
// key's default value.
func (p *Prefix) RegistryAdd(ctx context.Context, key, name, typ, value string) error {
	args := []string{"add", key}
	if name == "" {
		args = append(args, "/ve")
	} else {
		args = append(args, "/v", name)
	}
	if typ != "" {
		args = append(args, "/t", typ)
	}
	if value != "" {
		args = append(args, "/d", value)
	}
	args = append(args, "/f")

	if err := p.Wine(ctx, "reg", args...); err != nil {
		return fmt.Errorf("reg add %s\\%s: %w", key, name, err)
	}
	return nil
}

// RegistryBinary writes data as a REG_BINARY value.
func (p *Prefix) RegistryBinary(ctx context.Context, key, name string, data []byte) error {
	return p.RegistryAdd(ctx, key, name, RegBinary, hex.EncodeToString(data))
}

// RegistryExists reports whether a value is present, using reg query's
// exit status.
func (p *Prefix) RegistryExists(ctx context.Context, key, name string) (bool, error) {
	err := p.Wine(ctx, "reg", "query", key, "/v", name)
	if err == nil {
		return true, nil
	}
	if exitedNonZero(err) {
		return false, nil
	}
	return false, err
}

// exitedNonZero reports whether err is a process that ran and exited
// non-zero, as opposed to one that failed to start.
func exitedNonZero(err error) bool {
	var ae *apperr.Error
	return errors.As(err, &ae) && ae.Kind == apperr.KindProcess && ae.ExitStatus > 0
}
