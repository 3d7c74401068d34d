//go:build !windows

package wsl

func nativeIsRegistered(string) (bool, error) {
	return false, errNoNative
}
