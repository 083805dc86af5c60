package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "deepresearch"}

	root.AddCommand(researchCMD(), vectorCMD(), sessionsCMD(), migrateCMD())
	_ = root.Execute()
}
