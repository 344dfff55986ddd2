package main

import (
	"github.com/tanpawarit/Chative-Rule-Based-Dialogue/cmd"
	_ "github.com/tanpawarit/Chative-Rule-Based-Dialogue/pkg/logger/autoload"
)

func main() {
	cmd.Execute()
}
