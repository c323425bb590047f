// SPDX-License-Identifier: MPL-2.0

package config

// configDirOverride replaces os.UserConfigDir in ConfigDir when set.
var configDirOverride string

// SetConfigDirOverride points ConfigDir at dir and returns a function that
// restores the previous directory. Callers must not run concurrently.
func SetConfigDirOverride(dir string) (restore func()) {
	prev := configDirOverride
	configDirOverride = dir
	return func() { configDirOverride = prev }
}
