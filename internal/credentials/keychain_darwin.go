//go:build darwin

package credentials

import (
	"errors"
	"os/exec"
	"strings"
)

type systemKeychain struct{}

// NewKeychain returns the macOS keychain backed by the security CLI.
func NewKeychain() Keychain { return systemKeychain{} }

func (systemKeychain) Get(service, account string) (string, error) {
	out, err := exec.Command(
		"security", "find-generic-password",
		"-s", service,
		"-a", account,
		"-w",
	).Output()
	if err != nil {
		// The CLI exits non-zero when the item does not exist.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (systemKeychain) Set(service, account, value string) error {
	return exec.Command(
		"security", "add-generic-password",
		"-U",
		"-s", service,
		"-a", account,
		"-w", value,
	).Run()
}
