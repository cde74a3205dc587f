//go:build unix

package keystore

import "os"

func setPrivatePerms(path string) error {
	if err := os.Chmod(path, 0o600); err != nil {
		return keystoreErr(ErrIo, "chmod key file: "+err.Error())
	}
	return nil
}
