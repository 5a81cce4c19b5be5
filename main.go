// Command sitelens batch-indexes website screenshots for similarity search.
package main

import "github.com/JakeFAU/sitelens/cmd"

func main() {
	cmd.Execute()
}
