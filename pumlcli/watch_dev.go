//go:build dev

package pumlcli

func init() {
	devMode = true
}
