package pumlcli

import (
	"fmt"
	"path/filepath"

	"oss.terrastruct.com/pumlview/lib/version"
	"oss.terrastruct.com/pumlview/lib/xmain"
)

func help(ms *xmain.State) {
	fmt.Fprintf(ms.Stdout, `%[1]s %[2]s
Usage:
  %[1]s [--server=url] file.puml ...
  %[1]s preview file.puml ...
  %[1]s export [--format=svg|png] file.puml [file.svg | file.png]
  %[1]s url [--format=svg|png] [--open] file.puml
  %[1]s config init | show
  %[1]s version

%[1]s opens a live preview of file.puml in your browser. The preview follows the most
recently saved file and refreshes on every save. Diagrams are rendered by a PlantUML
server; the source is sent to it encoded in the image URL.

Flags:
%[3]s

Subcommands:
  %[1]s preview file.puml ... - Same as %[1]s file.puml ...
  %[1]s export file.puml [out] - Renders file.puml to out, prompting for the path when omitted
  %[1]s url file.puml - Prints the image URL of file.puml
  %[1]s config init - Writes the default config file
  %[1]s config show - Prints the effective config
`, filepath.Base(ms.Name), version.Version, ms.Opts.Defaults())
}
