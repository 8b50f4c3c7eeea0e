package main

import (
	"github.com/dirsrv-monitor/cmd/agent"
)

func main() {
	agent.Execute()
}
