package node

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

func readFileFromDir(dir, name string) ([]byte, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid file name: %q", name)
	}
	return fs.ReadFile(os.DirFS(dir), name)
}

// ReadRegistryFiles loads a signed peer registry payload and its detached
// signature from networkDir, rejecting any name that escapes the directory
// (no "..", no path separators).
func ReadRegistryFiles(networkDir, payloadName string) (payload []byte, signature []byte, err error) {
	payload, err = readFileFromDir(networkDir, payloadName)
	if err != nil {
		return nil, nil, fmt.Errorf("read registry payload: %w", err)
	}
	signature, err = readFileFromDir(networkDir, payloadName+".sig")
	if err != nil {
		return nil, nil, fmt.Errorf("read registry signature: %w", err)
	}
	return payload, signature, nil
}
