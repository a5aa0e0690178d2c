package main

import (
	"oss.terrastruct.com/pumlview/lib/xmain"
	"oss.terrastruct.com/pumlview/pumlcli"
)

func main() {
	xmain.Main(pumlcli.Run)
}
