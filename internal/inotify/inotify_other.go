//go:build !linux

package inotify

const nativeSupported = false

func newNative() (Source, error) {
	return nil, ErrUnsupported
}
