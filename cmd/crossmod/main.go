// SPDX-License-Identifier: MPL-2.0

// Command crossmod makes guest plugin packages loadable on a host platform.
package main

func main() {
	Execute()
}
