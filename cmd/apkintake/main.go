package main

import "github.com/apk-analysis/apk-intake-go/cmd/apkintake/cmd"

func main() {
	cmd.Execute()
}
