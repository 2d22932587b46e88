package main

import (
	"forumcore/cmd/forumcli/commands"
	"forumcore/lib/telemetry"
	"forumcore/lib/util/serviceutil"
)

func main() {
	telemetry.InitSlog(false)
	commands.ExecuteContext(serviceutil.SignalContext())
}
