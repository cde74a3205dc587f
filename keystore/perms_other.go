//go:build !unix

package keystore

func setPrivatePerms(path string) error {
	// Best-effort only: no POSIX mode bits on this platform.
	return nil
}
